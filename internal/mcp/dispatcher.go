package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/henryperkins/mcprag/internal/auth"
	"github.com/henryperkins/mcprag/internal/errors"
)

// Tool is one registry entry. Handlers receive the decoded input struct
// produced by Input(); the dispatcher owns validation, authorization, the
// confirmation gate, and envelope translation.
type Tool struct {
	Name        string
	Description string
	// Group organizes tools by concern: search, analysis, generation,
	// feedback, cache, admin, service.
	Group string
	// Tier is the minimum tier admitted. The dispatcher check is
	// authoritative; there is no per-tool auth anywhere else.
	Tier auth.Tier
	// Destructive tools require confirm=true; the first call without it
	// returns a confirmation prompt and performs no side effect.
	Destructive bool
	// Timeout bounds the handler; zero means the default.
	Timeout time.Duration
	// Input returns a pointer to a zero value of the tool's input struct.
	Input func() any
	// Handle executes the tool with the decoded input.
	Handle func(ctx context.Context, input any) (any, error)
}

// ToolInfo is the externally visible tool descriptor.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Group       string `json:"group"`
	Tier        string `json:"tier"`
	Destructive bool   `json:"destructive,omitempty"`
}

// DefaultToolTimeout bounds handlers that do not declare their own.
const DefaultToolTimeout = 30 * time.Second

// Dispatcher routes tool invocations: principal extraction, tier and MFA
// enforcement, input decoding, the confirmation gate, and envelope
// translation all live here.
type Dispatcher struct {
	tools      map[string]*Tool
	requireMFA bool
	devMode    bool
}

// NewDispatcher creates an empty dispatcher. requireMFA gates admin tools
// behind MFA-verified principals; devMode substitutes a synthetic admin
// principal when the context carries none (local stdio only).
func NewDispatcher(requireMFA, devMode bool) *Dispatcher {
	return &Dispatcher{
		tools:      make(map[string]*Tool),
		requireMFA: requireMFA,
		devMode:    devMode,
	}
}

// Register adds a tool. Duplicate names are a programming error.
func (d *Dispatcher) Register(t *Tool) {
	if _, exists := d.tools[t.Name]; exists {
		panic("mcp: duplicate tool " + t.Name)
	}
	if t.Input == nil {
		t.Input = func() any { return &struct{}{} }
	}
	d.tools[t.Name] = t
}

// Tools lists tools visible to the given tier, sorted by group then name.
func (d *Dispatcher) Tools(tier auth.Tier) []ToolInfo {
	out := make([]ToolInfo, 0, len(d.tools))
	for _, t := range d.tools {
		if !tier.Meets(t.Tier) {
			continue
		}
		out = append(out, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			Group:       t.Group,
			Tier:        t.Tier.String(),
			Destructive: t.Destructive,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// AllTools lists every registered tool regardless of tier.
func (d *Dispatcher) AllTools() []ToolInfo {
	return d.Tools(auth.TierService)
}

// Has reports whether a tool is registered.
func (d *Dispatcher) Has(name string) bool {
	_, ok := d.tools[name]
	return ok
}

// Dispatch runs one tool invocation and always returns an envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) Envelope {
	correlationID := uuid.NewString()

	tool, ok := d.tools[name]
	if !ok {
		return Err(errors.Newf(errors.KindNotFound, "unknown tool: %s", name), correlationID)
	}

	principal := auth.FromContext(ctx)
	if principal == nil {
		if d.devMode {
			principal = auth.DevPrincipal()
			ctx = auth.WithPrincipal(ctx, principal)
		} else {
			principal = auth.Anonymous()
			ctx = auth.WithPrincipal(ctx, principal)
		}
	}

	if !principal.Tier.Meets(tool.Tier) {
		return Err(errors.Newf(errors.KindForbidden,
			"tool %s requires the %s tier", name, tool.Tier), correlationID)
	}
	if tool.Tier >= auth.TierAdmin && d.requireMFA && !principal.MFAVerified {
		return Err(errors.New(errors.KindForbidden,
			"MFA verification required for admin operations"), correlationID)
	}

	input := tool.Input()
	if err := decodeArgs(args, input); err != nil {
		return Err(err, correlationID)
	}

	if tool.Destructive && !confirmed(args) {
		return ConfirmationRequired(
			"This operation is destructive. Repeat the call with confirm=true to proceed.")
	}

	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	data, err := tool.Handle(ctx, input)
	if err != nil {
		slog.Warn("tool failed",
			slog.String("tool", name),
			slog.String("user", principal.UserID),
			slog.String("code", string(errors.KindOf(err))),
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return Err(err, correlationID)
	}

	slog.Debug("tool completed",
		slog.String("tool", name),
		slog.String("user", principal.UserID),
		slog.Duration("duration", time.Since(start)))

	if env, ok := data.(Envelope); ok {
		return env
	}
	return OK(data)
}

// decodeArgs maps raw arguments onto the tool's input struct. Unknown
// fields are rejected so typos fail loudly instead of being ignored.
func decodeArgs(args map[string]any, input any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return errors.Wrap(errors.KindValidation, "invalid arguments", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(input); err != nil {
		return errors.Wrap(errors.KindValidation, "invalid arguments: "+err.Error(), err)
	}
	return nil
}

// confirmed reads the confirm flag from raw args. It lives beside the
// typed input so every destructive tool shares one gate.
func confirmed(args map[string]any) bool {
	v, ok := args["confirm"].(bool)
	return ok && v
}
