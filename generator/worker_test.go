package generator_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/genwire/client"
	"github.com/syssam/genwire/generator"
	"github.com/syssam/genwire/protocol"
	"github.com/syssam/genwire/worker"
)

func TestServedOverProtocol(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"schema.graphqls": "type Query { hello(name: String!): String! @cacheControl(maxAge: 10) }",
		"hello.graphql":   "query Hello($name: String!) { hello(name: $name) }",
		"broken.graphql":  "query Broken { missing }",
	}
	for name, text := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(text), 0o644))
	}

	gen, err := generator.New(generator.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	srv := worker.NewServer(reqR, respW, gen, worker.WithLogger(slog.New(slog.DiscardHandler)))
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(context.Background()) }()

	c, err := client.New(respR, reqW)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := c.Generate(ctx, &protocol.GeneratorRequest{
		RootDirectory:     root,
		Package:           "hello",
		DocumentFileNames: []string{"schema.graphqls", "hello.graphql"},
	})
	require.NoError(t, err)
	require.False(t, resp.HasErrors(), "%v", resp.Errors)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "hello.go", resp.Documents[0].Name)
	assert.Regexp(t, `HelloMaxAge\s+= 10 \* time.Second`, resp.Documents[0].SourceText)

	out := t.TempDir()
	require.NoError(t, generator.WriteDocuments(ctx, out, resp.Documents))
	assert.FileExists(t, filepath.Join(out, "hello.go"))

	t.Run("errors travel with their location", func(t *testing.T) {
		resp, err := c.Generate(ctx, &protocol.GeneratorRequest{
			RootDirectory:     root,
			DocumentFileNames: []string{"schema.graphqls", "broken.graphql"},
		})
		require.NoError(t, err)
		require.True(t, resp.HasErrors())
		assert.Empty(t, resp.Documents)
		assert.Equal(t, generator.CodeDocument, resp.Errors[0].Code)
		assert.Equal(t, "broken.graphql", resp.Errors[0].FilePath)
		assert.Equal(t, 1, resp.Errors[0].Line)
	})

	require.NoError(t, c.Shutdown(ctx))
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
