package log

import (
	"context"
	"log/slog"
)

// SlogAdapter bridges protocol events onto a standard slog.Logger so a
// development run can tail them on the console instead of capturing a
// ulog file.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger in an adapter satisfying Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log emits the event at debug level, one attribute per field.
func (a *SlogAdapter) Log(event Event) {
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", eventAttrs(event)...)
}

func eventAttrs(event Event) []slog.Attr {
	attrs := make([]slog.Attr, 0, 12)
	attrs = append(attrs,
		slog.String("session_id", event.SessionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	)
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote_addr", event.RemoteAddr))
	}

	switch {
	case event.Frame != nil:
		f := event.Frame
		attrs = append(attrs, slog.Int("frame_size", f.Size), slog.Bool("truncated", f.Truncated))
	case event.Command != nil:
		c := event.Command
		attrs = append(attrs, slog.String("op", c.Op.String()), slog.Uint64("msg_id", uint64(c.MessageID)))
		if c.ContextID != nil {
			attrs = append(attrs, slog.Uint64("ctx_id", *c.ContextID))
		}
	case event.Reply != nil:
		r := event.Reply
		attrs = append(attrs,
			slog.String("op", r.Op.String()),
			slog.Uint64("msg_id", uint64(r.MessageID)),
			slog.String("status", r.Status.String()),
		)
		if r.ProcessingTime != nil {
			attrs = append(attrs, slog.Duration("processing_time", *r.ProcessingTime))
		}
	case event.Ingest != nil:
		in := event.Ingest
		attrs = append(attrs,
			slog.Uint64("event_kind", uint64(in.Kind)),
			slog.Uint64("ctx_id", in.ContextID),
			slog.Uint64("disposition", uint64(in.Disposition)),
		)
		if in.GroupID != nil {
			attrs = append(attrs, slog.Uint64("group_id", *in.GroupID))
		}
		if in.Status != 0 {
			attrs = append(attrs, slog.Int64("event_status", int64(in.Status)))
		}
	case event.StateChange != nil:
		sc := event.StateChange
		attrs = append(attrs,
			slog.String("entity", sc.Entity.String()),
			slog.String("old_state", sc.OldState),
			slog.String("new_state", sc.NewState),
		)
		if sc.EntityID != "" {
			attrs = append(attrs, slog.String("entity_id", sc.EntityID))
		}
		if sc.Reason != "" {
			attrs = append(attrs, slog.String("reason", sc.Reason))
		}
	case event.ControlMsg != nil:
		attrs = append(attrs, slog.String("ctrl_type", event.ControlMsg.Type.String()))
		if event.ControlMsg.Sequence != nil {
			attrs = append(attrs, slog.Uint64("seq", uint64(*event.ControlMsg.Sequence)))
		}
	case event.Error != nil:
		e := event.Error
		attrs = append(attrs, slog.String("error_layer", e.Layer.String()), slog.String("error_msg", e.Message))
		if e.Context != "" {
			attrs = append(attrs, slog.String("error_context", e.Context))
		}
		if e.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *e.Code))
		}
	}
	return attrs
}

var _ Logger = (*SlogAdapter)(nil)
