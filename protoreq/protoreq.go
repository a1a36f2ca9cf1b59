// Package protoreq builds synthetic CodeGeneratorRequest messages and
// drives them through a protoc-plugin-shaped subprocess over stdin/
// stdout, parsing its CodeGeneratorResponse. It exists to prove a
// wrapped JVM plugin behaves like a faithful protoc plugin without a
// real JVM or generator present in the test environment.
package protoreq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/pluginpb"
)

// BuildRequest parses protoFile (resolved against importRoots) and
// assembles a CodeGeneratorRequest naming it as the single file to
// generate, with parameter passed through as the plugin parameter
// string.
func BuildRequest(importRoots []string, protoFile, parameter string) (*pluginpb.CodeGeneratorRequest, error) {
	parser := protoparse.Parser{ImportPaths: importRoots, IncludeSourceCodeInfo: true}
	descriptors, err := parser.ParseFiles(protoFile)
	if err != nil {
		return nil, fmt.Errorf("protoreq: cannot parse %s: %w", protoFile, err)
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("protoreq: %s produced no file descriptor", protoFile)
	}

	req := &pluginpb.CodeGeneratorRequest{
		FileToGenerate: []string{protoFile},
		Parameter:      proto.String(parameter),
	}
	for _, d := range descriptors {
		req.ProtoFile = append(req.ProtoFile, d.AsFileDescriptorProto())
	}
	return req, nil
}

// Invoke runs launcherPath (an executable produced by the launcher
// package, or any process speaking the protoc plugin protocol), writes
// req's serialized bytes to its stdin, and parses its stdout as a
// CodeGeneratorResponse.
func Invoke(ctx context.Context, launcherPath string, req *pluginpb.CodeGeneratorRequest) (*pluginpb.CodeGeneratorResponse, error) {
	payload, err := proto.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("protoreq: cannot marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, launcherPath)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("protoreq: plugin %s failed: %w (stderr: %s)", launcherPath, err, stderr.String())
	}

	resp := new(pluginpb.CodeGeneratorResponse)
	if err := proto.Unmarshal(stdout.Bytes(), resp); err != nil {
		return nil, fmt.Errorf("protoreq: cannot unmarshal response from %s: %w", launcherPath, err)
	}
	if resp.GetError() != "" {
		return nil, fmt.Errorf("protoreq: plugin %s reported error: %s", launcherPath, resp.GetError())
	}
	return resp, nil
}

// ReadAllStdout drains r fully, a helper for tests that pipe a fake
// generator's output directly rather than through Invoke.
func ReadAllStdout(r io.Reader) (*pluginpb.CodeGeneratorResponse, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	resp := new(pluginpb.CodeGeneratorResponse)
	if err := proto.Unmarshal(data, resp); err != nil {
		return nil, fmt.Errorf("protoreq: cannot unmarshal response: %w", err)
	}
	return resp, nil
}
