// Package remotefile implements the remote.file resource type: a file on a
// remote host managed over SSH/SFTP. Every operation dials its own scoped
// connection and releases it before returning.
package remotefile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/openconverge/converge/pkg/engine"
	"github.com/openconverge/converge/pkg/transports/ssh"
)

// TypeName is the resource type implemented by this package.
const TypeName = "remote.file"

// Version is the resource type version.
const Version = "1.0.0"

// DefaultMode is the file mode applied when a new file is created without an
// explicit mode.
const DefaultMode = "0644"

var schema = engine.MustSchema(TypeName, Version,
	engine.PropertySpec{
		Name:        "host",
		Kind:        engine.KindString,
		Description: "Host the file lives on.",
		Required:    true,
		Identifying: true,
	},
	engine.PropertySpec{
		Name:        "path",
		Kind:        engine.KindString,
		Description: "Absolute path of the file on the host.",
		Required:    true,
		Identifying: true,
	},
	engine.PropertySpec{
		Name:        "content",
		Kind:        engine.KindString,
		Description: "File content.",
	},
	engine.PropertySpec{
		Name:        "mode",
		Kind:        engine.KindString,
		Description: "File mode as four octal digits.",
		Pattern:     `^0[0-7]{3}$`,
		Default:     DefaultMode,
	},
	engine.PropertySpec{
		Name:        "notify",
		Kind:        engine.KindString,
		Description: "System to flag for restart when the file changes. A directive, not remote state.",
		WriteOnly:   true,
	},
)

// remoteFiles is the file surface an operation needs from a connection.
// *ssh.Files implements it; tests substitute an in-memory one.
type remoteFiles interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Stat(ctx context.Context, path string) (os.FileInfo, error)
	WriteAtomic(ctx context.Context, path string, data []byte, mode os.FileMode) error
	Chmod(ctx context.Context, path string, mode os.FileMode) error
	Remove(ctx context.Context, path string) error
}

// connectFunc opens a file session against one host. The returned closer
// releases the connection and runs on every exit path.
type connectFunc func(ctx context.Context, cfg ssh.Config) (remoteFiles, func() error, error)

// Resource manages remote.file units over the SSH transport.
type Resource struct {
	base    ssh.Config
	connect connectFunc
}

// New creates a remote.file resource. The base config carries everything but
// the host, which each desired state supplies; ssh.DefaultConfig is a good
// starting point.
func New(base ssh.Config) *Resource {
	return &Resource{base: base, connect: dialSSH}
}

// TypeInfo reports the resource type metadata.
func (r *Resource) TypeInfo() engine.TypeInfo {
	return engine.TypeInfo{
		Name:        TypeName,
		Version:     Version,
		Description: "File on a remote host, managed over SSH/SFTP.",
	}
}

// Schema reports the property contract.
func (r *Resource) Schema() *engine.Schema {
	return schema
}

// Get reads the file addressed by host and path. A missing remote file
// reports engine.ErrNotFound.
func (r *Resource) Get(ctx context.Context, req *engine.GetRequest) (*engine.Instance, error) {
	host, _ := req.Desired.StringProp("host")
	path, _ := req.Desired.StringProp("path")

	files, release, err := r.open(ctx, host)
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	data, err := files.Read(ctx, path)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("failed to read %s on %s", path, host))
	}
	info, err := files.Stat(ctx, path)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("failed to stat %s on %s", path, host))
	}

	return engine.NewInstance().
		SetProp("host", host).
		SetProp("path", path).
		SetProp("content", string(data)).
		SetProp("mode", fmt.Sprintf("%04o", info.Mode().Perm())), nil
}

// Set converges the remote file. Content changes rewrite the file through an
// atomic temp-and-rename; a mode-only change is a chmod. When the desired
// state names a notify system and the file changed, the response flags it for
// restart.
func (r *Resource) Set(ctx context.Context, req *engine.SetRequest) (*engine.SetResponse, error) {
	host, _ := req.Desired.StringProp("host")
	path, _ := req.Desired.StringProp("path")

	changed := map[string]bool{}
	if req.Diff != nil {
		for _, name := range req.Diff.Changed {
			changed[name] = true
		}
	}
	creating := req.Actual == nil || !req.Actual.Exists()

	content, hasContent := req.Desired.StringProp("content")
	if !hasContent && !creating {
		content, _ = req.Actual.StringProp("content")
	}

	modeStr := DefaultMode
	if m, ok := req.Desired.StringProp("mode"); ok {
		modeStr = m
	} else if !creating {
		if m, ok := req.Actual.StringProp("mode"); ok {
			modeStr = m
		}
	}
	mode, err := parseMode(modeStr)
	if err != nil {
		return nil, err
	}

	files, release, err := r.open(ctx, host)
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	switch {
	case creating || changed["content"]:
		if err := files.WriteAtomic(ctx, path, []byte(content), mode); err != nil {
			return nil, classify(err, fmt.Sprintf("failed to write %s on %s", path, host))
		}
	case changed["mode"]:
		if err := files.Chmod(ctx, path, mode); err != nil {
			return nil, classify(err, fmt.Sprintf("failed to chmod %s on %s", path, host))
		}
	}

	resp := &engine.SetResponse{
		After: engine.NewInstance().
			SetProp("host", host).
			SetProp("path", path).
			SetProp("content", content).
			SetProp("mode", modeStr),
	}
	if notify, ok := req.Desired.StringProp("notify"); ok && notify != "" {
		if creating || changed["content"] || changed["mode"] {
			resp.RestartRequired = []engine.RestartHint{{System: notify}}
		}
	}
	return resp, nil
}

// Delete removes the remote file. A file that is already gone reports
// engine.ErrNotFound, which the caller treats as success.
func (r *Resource) Delete(ctx context.Context, req *engine.DeleteRequest) error {
	host, _ := req.Desired.StringProp("host")
	path, _ := req.Desired.StringProp("path")

	files, release, err := r.open(ctx, host)
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	if err := files.Remove(ctx, path); err != nil {
		return classify(err, fmt.Sprintf("failed to delete %s on %s", path, host))
	}
	return nil
}

// open dials the host named by the desired state with the resource's base
// config.
func (r *Resource) open(ctx context.Context, host string) (remoteFiles, func() error, error) {
	cfg := r.base
	cfg.Host = host
	files, release, err := r.connect(ctx, cfg)
	if err != nil {
		return nil, nil, classifyConnect(err, host)
	}
	return files, release, nil
}

// dialSSH is the production connectFunc.
func dialSSH(ctx context.Context, cfg ssh.Config) (remoteFiles, func() error, error) {
	client, err := ssh.NewClient(&cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}
	files, err := client.Files()
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return files, client.Close, nil
}

// parseMode converts a four-digit octal mode string into a file mode.
func parseMode(s string) (os.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, engine.NewInvalidArgumentError(fmt.Sprintf("invalid file mode %q", s), err)
	}
	return os.FileMode(v), nil
}

// classify maps remote file failures onto the failure taxonomy. The SFTP
// layer keeps the os sentinels in its error chains, so errors.Is sees through
// the wrapping.
func classify(err error, msg string) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return engine.ErrNotFound
	case errors.Is(err, os.ErrPermission):
		return engine.NewPermissionDeniedError(msg, err)
	default:
		return engine.NewGenericError(msg, err)
	}
}

// classifyConnect maps connection failures. A rejected authentication is
// permission-denied; everything else, including an invalid base config, is
// generic.
func classifyConnect(err error, host string) error {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return engine.NewPermissionDeniedError(fmt.Sprintf("authentication to %s failed", host), err)
	}
	return engine.NewGenericError(fmt.Sprintf("ssh connection to %s failed", host), err)
}
