package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/go-loom/loom/pkg/host"
	"github.com/go-loom/loom/pkg/inspect"
	"github.com/go-loom/loom/pkg/trace"
)

var inspectCmd = &Command{
	Name:  "inspect",
	Short: "query a running engine's inspector",
	Usage: "loom inspect -addr host:port (tree|trace)",
}

func init() { inspectCmd.Run = runInspect }

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:6553", "inspector address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	what := fs.Arg(0)
	if what != "tree" && what != "trace" {
		return fmt.Errorf("usage: %s", inspectCmd.Usage)
	}

	conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		return err
	}
	stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{})
	noop := jsonrpc2.HandlerWithError(func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (any, error) {
		return nil, nil
	})
	client := jsonrpc2.NewConn(context.Background(), stream, noop)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch what {
	case "tree":
		var tree []host.TreeNode
		if err := client.Call(ctx, "tree/snapshot", nil, &tree); err != nil {
			return err
		}
		return printJSON(tree)
	default:
		var dump inspect.TraceDump
		if err := client.Call(ctx, "trace/dump", nil, &dump); err != nil {
			return err
		}
		tl, err := trace.Decode(dump.Data)
		if err != nil {
			return err
		}
		return printJSON(tl)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
