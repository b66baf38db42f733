package backref

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/apiscenario/pkg/tree"
)

func mustParse(t *testing.T, s string) tree.Value {
	t.Helper()
	v, err := tree.ParseJSON([]byte(s))
	require.NoError(t, err)
	return v
}

func caseTable(t *testing.T) Table {
	return Empty().
		WithSelf(mustParse(t, `{"request":{"uri":"/cases"}}`)).
		WithChild("createCase", mustParse(t, `{"response":{"responseCode":201,"body":{"id":1234567890,"state":"Open","tags":["a","b"]}}}`))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("${{ .children.createCase.response.body.id }}"))
	assert.True(t, Contains("/cases/{{ .children.createCase.response.body.id }}"))
	assert.False(t, Contains("/cases/{id}"))
	assert.False(t, Contains("{{ not a path }}"))
	assert.True(t, ContainsAny(mustParse(t, `{"a":["x","${{ .self }}"]}`)))
	assert.False(t, ContainsAny(mustParse(t, `{"a":["x",1]}`)))
}

func TestResolveString(t *testing.T) {
	r := NewResolver(0)
	ctx := context.Background()
	table := caseTable(t)

	tests := []struct {
		name string
		in   string
		want tree.Value
	}{
		{
			name: "whole value keeps kind",
			in:   "${{ .children.createCase.response.body.id }}",
			want: tree.Int(1234567890),
		},
		{
			name: "template shorthand",
			in:   "{{ .children.createCase.response.body.state }}",
			want: tree.String("Open"),
		},
		{
			name: "embedded expressions become text",
			in:   "/cases/${{ .children.createCase.response.body.id }}/events?state={{ .children.createCase.response.body.state }}",
			want: tree.String("/cases/1234567890/events?state=Open"),
		},
		{
			name: "sequence result",
			in:   "${{ .children.createCase.response.body.tags }}",
			want: tree.Sequence(tree.String("a"), tree.String("b")),
		},
		{
			name: "jq pipeline",
			in:   "${{ .children.createCase.response.body.tags | length }}",
			want: tree.Int(2),
		},
		{
			name: "no expression",
			in:   "plain {{text}}",
			want: tree.String("plain {{text}}"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveString(ctx, tt.in, table)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got.Text())
		})
	}
}

func TestResolveValue(t *testing.T) {
	r := NewResolver(0)
	body := mustParse(t, `{"caseId":"${{ .children.createCase.response.body.id }}","note":"keep"}`)

	got, err := r.ResolveValue(context.Background(), body, caseTable(t))
	require.NoError(t, err)
	id, _ := got.Get("caseId")
	assert.Equal(t, tree.KindNumber, id.Kind())
	assert.Equal(t, "1234567890", id.Text())
	note, _ := got.Get("note")
	assert.Equal(t, "keep", note.Text())
}

func TestFunctions(t *testing.T) {
	r := NewResolver(0)
	r.lookup = func(name string) (string, bool) {
		if name == "TENANT" {
			return "probate", true
		}
		return "", false
	}

	got, err := r.ResolveString(context.Background(), `${{ uuid }}`, Empty())
	require.NoError(t, err)
	_, err = uuid.Parse(got.Text())
	assert.NoError(t, err)

	got, err = r.ResolveString(context.Background(), `${{ env("TENANT") }}`, Empty())
	require.NoError(t, err)
	assert.Equal(t, "probate", got.Text())

	got, err = r.ResolveString(context.Background(), `${{ env("NOPE") }}`, Empty())
	require.NoError(t, err)
	assert.True(t, got.IsNull())
}

func TestErrors(t *testing.T) {
	r := NewResolver(10 * time.Millisecond)

	_, err := r.ResolveString(context.Background(), "${{ .a | }}", Empty())
	assert.Error(t, err)

	_, err = r.ResolveString(context.Background(), `${{ error("boom") }}`, Empty())
	assert.ErrorContains(t, err, "boom")

	assert.Error(t, r.Validate("x ${{ .[ }}"))
	assert.NoError(t, r.Validate("x ${{ .self }} {{ .parent }}"))
}

func TestTable_ForChild(t *testing.T) {
	parent := caseTable(t)
	child := parent.ForChild()

	doc := child.Document()
	p, _ := doc.Get("parent")
	assert.True(t, p.Equal(mustParse(t, `{"request":{"uri":"/cases"}}`)))

	siblings, _ := doc.Get("siblings")
	_, ok := siblings.Get("createCase")
	assert.True(t, ok)

	children, _ := doc.Get("children")
	assert.Equal(t, 0, children.Len())

	// Adding to the child view leaves the parent untouched.
	_ = child.WithChild("other", tree.Null())
	_ = parent.WithChild("later", tree.Null())
	_, ok = child.Child("later")
	assert.False(t, ok)
	_, ok = parent.Child("later")
	assert.False(t, ok)
}
