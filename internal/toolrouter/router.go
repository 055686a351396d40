// Package toolrouter implements the Tool Router: policy-gated,
// write-path-resolved dispatch of named tool calls, with a Permission
// Request suspension for writes outside the allowed paths and result
// stamping for observability.
package toolrouter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pandora-run/pandora/internal/agent"
	"github.com/pandora-run/pandora/internal/perrors"
	"github.com/pandora-run/pandora/internal/audit"
	"github.com/pandora-run/pandora/internal/policy"
	"github.com/pandora-run/pandora/pkg/models"
)

// DefaultToolTimeout is the tool call default, override-able per tool.
const DefaultToolTimeout = 60 * time.Second

// Router is the Tool Router.
type Router struct {
	registry    *Registry
	policy      *policy.Engine
	permissions *PermissionBroker

	schemaMu    sync.Mutex
	schemaCache map[string]*jsonschema.Schema

	// ToolTimeouts overrides DefaultToolTimeout per tool name.
	ToolTimeouts map[string]time.Duration

	// Metrics, when set, observes every Execute call.
	Metrics ExecRecorder

	// Artifacts, when set, receives every artifact a tool produces. Storage
	// is best-effort: a sink failure never fails the tool call that
	// produced the artifact.
	Artifacts ArtifactSink

	// Audit, when set, records invocations, denials, and completions.
	Audit *audit.Logger
}

// ArtifactSink persists tool-produced artifacts.
type ArtifactSink interface {
	StoreToolArtifact(ctx context.Context, traceID string, artifact agent.Artifact) error
}

// ExecRecorder observes tool dispatches; *observability.Metrics satisfies it.
type ExecRecorder interface {
	RecordToolExecution(toolName, status string, durationSeconds float64)
}

// New builds a Router over the given registry, policy engine, and
// Permission Broker.
func New(registry *Registry, engine *policy.Engine, permissions *PermissionBroker) *Router {
	if permissions == nil {
		permissions = NewPermissionBroker(0)
	}
	return &Router{
		registry:     registry,
		policy:       engine,
		permissions:  permissions,
		schemaCache:  make(map[string]*jsonschema.Schema),
		ToolTimeouts: make(map[string]time.Duration),
	}
}

// Execute dispatches one named tool call under the given profile/mode/trace,
// applying policy checks, write-path resolution, and result stamping before
// and after the underlying Tool runs.
func (r *Router) Execute(ctx context.Context, profile string, mode models.Mode, traceID string, call models.ToolCall) models.ToolResult {
	start := time.Now()
	if r.Audit != nil {
		r.Audit.LogToolInvocation(ctx, call.Name, call.ID, call.Input, traceID)
	}
	stamp := func(status models.ToolResultStatus, content, detail string) models.ToolResult {
		if r.Metrics != nil {
			r.Metrics.RecordToolExecution(call.Name, string(status), time.Since(start).Seconds())
		}
		if r.Audit != nil {
			switch status {
			case models.ToolStatusBlockedByPolicy:
				r.Audit.LogToolDenied(ctx, call.Name, call.ID, detail, "", traceID)
			default:
				r.Audit.LogToolCompletion(ctx, call.Name, call.ID, status == models.ToolStatusOK, content, time.Since(start), traceID)
			}
		}
		return models.ToolResult{
			ToolCallID: call.ID,
			Tool:       call.Name,
			ArgsDigest: argsDigest(call.Input),
			DurationMS: time.Since(start).Milliseconds(),
			Status:     status,
			Size:       len(content),
			Content:    content,
			Detail:     detail,
		}
	}

	tool, err := r.registry.mustGet(call.Name)
	if err != nil {
		return stamp(models.ToolStatusBadArgs, "", err.Error())
	}

	if err := r.validateArgs(tool, call.Input); err != nil {
		return stamp(models.ToolStatusBadArgs, "", err.Error())
	}

	var writePaths []string
	if wa, ok := tool.(agent.WriteAware); ok {
		writePaths, err = wa.WritePaths(call.Input)
		if err != nil {
			return stamp(models.ToolStatusBadArgs, "", err.Error())
		}
	}
	isWrite := len(writePaths) > 0

	decision := r.policy.Check(profile, mode, policy.Action{
		ToolName:   call.Name,
		IsWrite:    isWrite,
		WritePaths: writePaths,
	})
	if !decision.Allowed && !decision.RequireConfirm {
		return stamp(models.ToolStatusBlockedByPolicy, "", decision.Reason)
	}
	if decision.RequireConfirm {
		if err := r.awaitPermission(ctx, traceID, call.Name, writePaths, decision.Reason); err != nil {
			kind := perrors.KindOf(err)
			switch kind {
			case perrors.KindTimeout:
				return stamp(models.ToolStatusTimeout, "", err.Error())
			case perrors.KindCancelled:
				return stamp(models.ToolStatusCancelled, "", err.Error())
			default:
				return stamp(models.ToolStatusBlockedByPolicy, "", err.Error())
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeoutFor(call.Name))
	defer cancel()

	result, err := r.runTool(callCtx, tool, call.Input)
	if err != nil {
		if callCtx.Err() != nil {
			if ctx.Err() != nil {
				return stamp(models.ToolStatusCancelled, "", err.Error())
			}
			return stamp(models.ToolStatusTimeout, "", err.Error())
		}
		return stamp(models.ToolStatusToolFailed, "", err.Error())
	}
	if result.IsError {
		return stamp(models.ToolStatusToolFailed, result.Content, result.Content)
	}
	if r.Artifacts != nil {
		for _, a := range result.Artifacts {
			_ = r.Artifacts.StoreToolArtifact(ctx, traceID, a)
		}
	}
	return stamp(models.ToolStatusOK, result.Content, "")
}

func (r *Router) runTool(ctx context.Context, tool agent.Tool, params json.RawMessage) (*agent.ToolResult, error) {
	type outcome struct {
		result *agent.ToolResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := tool.Execute(ctx, params)
		done <- outcome{result, err}
	}()
	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// awaitPermission creates (or coalesces onto) a Permission Request for every
// write target and waits for all of them to resolve affirmatively.
func (r *Router) awaitPermission(ctx context.Context, traceID, toolName string, paths []string, reason string) error {
	for _, path := range paths {
		id := r.permissions.Request(traceID, toolName, path, reason)
		resolution, err := r.permissions.AwaitResolution(ctx, id)
		if err != nil {
			return err
		}
		if resolution != models.ResolutionOK {
			return perrors.New("await_permission", perrors.KindPolicyDenied, fmt.Errorf("permission request for %s was not approved", path))
		}
	}
	return nil
}

func (r *Router) timeoutFor(toolName string) time.Duration {
	if d, ok := r.ToolTimeouts[toolName]; ok && d > 0 {
		return d
	}
	return DefaultToolTimeout
}

func (r *Router) validateArgs(tool agent.Tool, params json.RawMessage) error {
	schema, err := r.compileSchema(tool.Name(), tool.Schema())
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", tool.Name(), err)
	}
	if schema == nil {
		return nil
	}
	var decoded any
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, &decoded); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("args invalid: %w", err)
	}
	return nil
}

func (r *Router) compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()

	if cached, ok := r.schemaCache[name]; ok {
		return cached, nil
	}
	if len(raw) == 0 {
		return nil, nil
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	r.schemaCache[name] = compiled
	return compiled, nil
}

func argsDigest(args json.RawMessage) string {
	sum := sha256.Sum256(args)
	return hex.EncodeToString(sum[:])
}
