package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/markmuse/markmuse"
	"github.com/markmuse/markmuse/convert"
)

type convertArgs struct {
	File    string `json:"file,omitempty" jsonschema:"local PDF file path"`
	URL     string `json:"url,omitempty" jsonschema:"remote PDF URL"`
	Name    string `json:"name,omitempty" jsonschema:"output document name"`
	Enhance bool   `json:"enhance,omitempty" jsonschema:"enable AI image descriptions"`
}

type convertOut struct {
	Document  string `json:"document"`
	Artifacts int    `json:"artifacts"`
	Failures  int    `json:"failures"`
}

// serveMCP exposes the converter as a single tool over stdio, so editor
// agents can convert documents without shelling out.
func serveMCP(ctx context.Context, svc *markmuse.Service, logger *slog.Logger) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: "markmuse", Version: "1.0.0"}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "markmuse_convert",
		Description: "Convert a PDF (local path or URL) to a Markdown document with extracted images.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args convertArgs) (*mcp.CallToolResult, convertOut, error) {
		opts := markmuse.RunOptions{OutputName: args.Name, Enhance: args.Enhance}

		var res *convert.ConversionResult
		var err error
		switch {
		case args.File != "":
			res, err = svc.ConvertFile(ctx, args.File, opts)
		case args.URL != "":
			res, err = svc.ConvertURL(ctx, args.URL, opts)
		default:
			return nil, convertOut{}, fmt.Errorf("one of file and url is required")
		}
		if err != nil {
			return nil, convertOut{}, err
		}

		return nil, convertOut{
			Document:  res.DocumentLocator.URL,
			Artifacts: res.ArtifactCount,
			Failures:  len(res.Failures),
		}, nil
	})

	logger.Info("mcp server listening on stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}
