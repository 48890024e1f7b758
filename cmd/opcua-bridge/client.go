package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/gopcua/opcua/ua"
	"github.com/spf13/cobra"

	"github.com/wippyai/opcua-bridge/client"
	"github.com/wippyai/opcua-bridge/config"
	"github.com/wippyai/opcua-bridge/engine"
	"github.com/wippyai/opcua-bridge/scalar"
)

const defaultURL = "opc.tcp://localhost:4855"

type clientOptions struct {
	url    string
	config string
	node   string
}

func (o *clientOptions) bind(cmd *cobra.Command, nodeDefault string) {
	cmd.Flags().StringVarP(&o.url, "url", "u", defaultURL, "Server endpoint URL")
	cmd.Flags().StringVarP(&o.config, "config", "c", "", "Client YAML file")
	cmd.Flags().StringVarP(&o.node, "node", "n", nodeDefault, "Node id, e.g. ns=1;s=Temp")
}

// conn is an open session and the engine it runs on.
type conn struct {
	e    *engine.Engine
	s    *client.Session
	loop *client.EventLoop
}

func dial(ctx context.Context, o clientOptions) (*conn, error) {
	c := client.New(config.Client{})
	if o.config != "" {
		var err error
		if c, err = client.Load(o.config); err != nil {
			return nil, err
		}
	}

	e, err := engine.New(engine.Config{Name: "cli"})
	if err != nil {
		return nil, err
	}
	type session struct {
		s    *client.Session
		loop *client.EventLoop
	}
	res, err := engine.Do(e, "connect", func(ctx context.Context) (session, error) {
		s, loop, err := c.ConnectSimple(ctx, e, o.url)
		return session{s, loop}, err
	})
	if err != nil {
		_ = e.Shutdown(ctx)
		return nil, err
	}
	return &conn{e: e, s: res.s, loop: res.loop}, nil
}

func (c *conn) close(ctx context.Context) {
	_ = engine.Run(c.e, "disconnect", func(ctx context.Context) error {
		return c.s.Disconnect(ctx, c.loop)
	})
	_ = c.e.Shutdown(ctx)
}

func readCmd() *cobra.Command {
	var (
		opts     clientOptions
		typeName string
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a variable as an exact scalar type",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := scalar.ParseName(typeName)
			if err != nil {
				return err
			}
			c, err := dial(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer c.close(cmd.Context())

			v, err := engine.Do(c.e, "read", func(ctx context.Context) (any, error) {
				return c.s.ReadScalar(ctx, client.TextNode(opts.node), t)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	opts.bind(cmd, "")
	cmd.Flags().StringVarP(&typeName, "type", "t", "Double", "Scalar type (Boolean, SByte, ..., Double)")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}

func writeCmd() *cobra.Command {
	var (
		opts     clientOptions
		typeName string
		value    string
	)

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a scalar value to a variable",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := scalar.ParseName(typeName)
			if err != nil {
				return err
			}
			v, err := parseValue(t, value)
			if err != nil {
				return err
			}
			c, err := dial(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer c.close(cmd.Context())

			return engine.Run(c.e, "write", func(ctx context.Context) error {
				return c.s.WriteScalar(ctx, client.TextNode(opts.node), t, v)
			})
		},
	}
	opts.bind(cmd, "")
	cmd.Flags().StringVarP(&typeName, "type", "t", "Double", "Scalar type")
	cmd.Flags().StringVarP(&value, "value", "v", "", "Value to write")
	_ = cmd.MarkFlagRequired("node")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

// parseValue converts text to the Go type of t.
func parseValue(t scalar.Type, s string) (any, error) {
	var (
		v   any
		err error
	)
	switch t {
	case scalar.Boolean:
		v, err = strconv.ParseBool(s)
	case scalar.SByte:
		var n int64
		n, err = strconv.ParseInt(s, 10, 8)
		v = int8(n)
	case scalar.Byte:
		var n uint64
		n, err = strconv.ParseUint(s, 10, 8)
		v = uint8(n)
	case scalar.Int16:
		var n int64
		n, err = strconv.ParseInt(s, 10, 16)
		v = int16(n)
	case scalar.UInt16:
		var n uint64
		n, err = strconv.ParseUint(s, 10, 16)
		v = uint16(n)
	case scalar.Int32:
		var n int64
		n, err = strconv.ParseInt(s, 10, 32)
		v = int32(n)
	case scalar.UInt32:
		var n uint64
		n, err = strconv.ParseUint(s, 10, 32)
		v = uint32(n)
	case scalar.Int64:
		v, err = strconv.ParseInt(s, 10, 64)
	case scalar.UInt64:
		v, err = strconv.ParseUint(s, 10, 64)
	case scalar.Float:
		var f float64
		f, err = strconv.ParseFloat(s, 32)
		v = float32(f)
	case scalar.Double:
		v, err = strconv.ParseFloat(s, 64)
	default:
		return nil, fmt.Errorf("%w: %d", scalar.ErrInvalidType, uint8(t))
	}
	if err != nil {
		return nil, fmt.Errorf("parse %q as %s: %w", s, t, err)
	}
	return v, nil
}

func infoCmd() *cobra.Command {
	var opts clientOptions

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print a node's value, display name and browse name",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer c.close(cmd.Context())

			text, err := engine.Do(c.e, "node_info", func(ctx context.Context) (string, error) {
				return c.s.NodeInfo(ctx, client.TextNode(opts.node))
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
	opts.bind(cmd, "")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}

// objectsFolder is the standard Objects folder, i=85.
const objectsFolder = "i=85"

func browseCmd() *cobra.Command {
	var (
		opts        clientOptions
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "List the children of a node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return runInteractive(cmd.Context(), opts)
			}
			c, err := dial(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer c.close(cmd.Context())

			refs, err := engine.Do(c.e, "browse", func(ctx context.Context) ([]client.Reference, error) {
				return c.s.Browse(ctx, client.TextNode(opts.node))
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatReferences(refs))
			return nil
		},
	}
	opts.bind(cmd, objectsFolder)
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Interactive browser")
	return cmd
}

// formatReferences renders browse results as an aligned table.
func formatReferences(refs []client.Reference) string {
	if len(refs) == 0 {
		return "(no children)\n"
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLASS\tNODE ID\tDISPLAY NAME")
	for _, r := range refs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", className(r), r.NodeID, r.DisplayName)
	}
	_ = w.Flush()
	return b.String()
}

var classNames = map[ua.NodeClass]string{
	ua.NodeClassObject:        "Object",
	ua.NodeClassVariable:      "Variable",
	ua.NodeClassMethod:        "Method",
	ua.NodeClassObjectType:    "ObjectType",
	ua.NodeClassVariableType:  "VariableType",
	ua.NodeClassReferenceType: "ReferenceType",
	ua.NodeClassDataType:      "DataType",
	ua.NodeClassView:          "View",
}

func className(r client.Reference) string {
	if name, ok := classNames[r.Class]; ok {
		return name
	}
	return fmt.Sprintf("Class(%d)", uint32(r.Class))
}
