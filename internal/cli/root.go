// Package cli contains the Cobra command tree of restkit.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/samvad-hq/restkit/internal/app"
	"github.com/samvad-hq/restkit/pkg/merge"
)

// OpenFunc builds the application a command runs against. Commands close
// the returned App when they finish.
type OpenFunc func() (*app.App, error)

// NewRoot constructs the root command and registers the request, token
// and profiles commands.
func NewRoot(open OpenFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "restkit",
		Short:         "Profile-driven HTTP client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRequestCommand(open),
		newTokenCommand(open),
		newProfilesCommand(open),
	)
	return root
}

// withApp opens the application, runs fn and closes it again.
func withApp(open OpenFunc, fn func(*app.App) error) (err error) {
	if open == nil {
		return errors.New("no application factory configured")
	}
	a, err := open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

// kvFlag reads a repeated key=value flag into a mapping in flag order.
// A repeated key keeps its first position and its last value.
func kvFlag(fs *pflag.FlagSet, name string) (*merge.Mapping, error) {
	raw, err := fs.GetStringArray(name)
	if err != nil {
		return nil, err
	}
	out := merge.NewMapping()
	for _, kv := range raw {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --%s, expected key=value: %s", name, kv)
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			return nil, fmt.Errorf("invalid --%s, empty key: %s", name, kv)
		}
		out.Set(key, merge.Leaf{V: parts[1]})
	}
	return out, nil
}

// parseData turns a --data argument into a request body. JSON or YAML
// objects and arrays are sent as ordered JSON, anything else as is.
func parseData(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	v, err := merge.Decode([]byte(raw))
	if err != nil {
		return raw
	}
	switch v.(type) {
	case *merge.Mapping, merge.Sequence:
		return v
	}
	return raw
}
