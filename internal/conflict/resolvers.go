package conflict

import (
	"fmt"

	"github.com/mnemoapp/mnemo/internal/queue"
)

// progressMergeResolver merges study-progress counters. Answered and correct
// counts only ever grow, so the elementwise maximum of both sides is the
// state neither device can have lost; everything else follows the newer
// document.
type progressMergeResolver struct{}

func (progressMergeResolver) Name() string { return "progress_merge" }

func (progressMergeResolver) Priority() int { return 90 }

func (progressMergeResolver) CanResolve(d Data) bool {
	return d.OperationType == queue.TypeProgressSync && d.Local != nil && d.Server != nil
}

func (progressMergeResolver) Resolve(d Data) (Resolution, error) {
	base, baseSide := d.Server, "server"
	localTS, lok := timestamp(d.Local, "updated_at")
	serverTS, sok := timestamp(d.Server, "updated_at")
	if lok && sok && localTS.After(serverTS) {
		base, baseSide = d.Local, "local"
	}

	merged := clone(base)
	for _, counter := range []string{"answered", "correct"} {
		lv, lok := numeric(d.Local[counter])
		sv, sok := numeric(d.Server[counter])
		switch {
		case lok && sok:
			merged[counter] = max(lv, sv)
		case lok:
			merged[counter] = lv
		case sok:
			merged[counter] = sv
		}
	}
	return Resolution{
		Data:     merged,
		Metadata: map[string]string{"base": baseSide},
	}, nil
}

// settingsMergeResolver shallow-merges settings documents. Local keys carry
// the latest user intent and take precedence; fields the server owns outright
// are always restored from the server copy.
type settingsMergeResolver struct{}

var serverOwnedFields = []string{"id", "created_at"}

func (settingsMergeResolver) Name() string { return "settings_merge" }

func (settingsMergeResolver) Priority() int { return 80 }

func (settingsMergeResolver) CanResolve(d Data) bool {
	switch d.OperationType {
	case queue.TypeSettingsUpdate, queue.TypeExamSettingsUpdate:
		return d.Local != nil && d.Server != nil
	}
	return false
}

func (settingsMergeResolver) Resolve(d Data) (Resolution, error) {
	merged := clone(d.Server)
	for k, v := range d.Local {
		merged[k] = v
	}
	for _, field := range serverOwnedFields {
		if v, ok := d.Server[field]; ok {
			merged[field] = v
		}
	}
	return Resolution{Data: merged}, nil
}

// answerServerWinsResolver keeps the server's answer record. Correctness is
// graded server-side; a diverging local copy is stale, not newer.
type answerServerWinsResolver struct{}

func (answerServerWinsResolver) Name() string { return "answer_server_wins" }

func (answerServerWinsResolver) Priority() int { return 70 }

func (answerServerWinsResolver) CanResolve(d Data) bool {
	switch d.OperationType {
	case queue.TypeAnswerSubmit, queue.TypeAnswerBatch:
		return d.Server != nil
	}
	return false
}

func (answerServerWinsResolver) Resolve(d Data) (Resolution, error) {
	return Resolution{Data: clone(d.Server)}, nil
}

// timestampResolver picks whichever document was written last. Ties go to
// the server.
type timestampResolver struct{}

func (timestampResolver) Name() string { return "timestamp" }

func (timestampResolver) Priority() int { return 50 }

func (timestampResolver) CanResolve(d Data) bool {
	_, lok := timestamp(d.Local, "updated_at")
	_, sok := timestamp(d.Server, "updated_at")
	return lok && sok
}

func (timestampResolver) Resolve(d Data) (Resolution, error) {
	localTS, lok := timestamp(d.Local, "updated_at")
	serverTS, sok := timestamp(d.Server, "updated_at")
	if !lok || !sok {
		return Resolution{}, fmt.Errorf("document without a readable updated_at")
	}
	winner, side := d.Server, "server"
	if localTS.After(serverTS) {
		winner, side = d.Local, "local"
	}
	return Resolution{
		Data:     clone(winner),
		Metadata: map[string]string{"winner": side},
	}, nil
}

// serverWinsResolver is the total fallback: when nothing more specific
// applies, the server copy stands.
type serverWinsResolver struct{}

func (serverWinsResolver) Name() string { return "server_wins" }

func (serverWinsResolver) Priority() int { return 0 }

func (serverWinsResolver) CanResolve(Data) bool { return true }

func (serverWinsResolver) Resolve(d Data) (Resolution, error) {
	if d.Server == nil {
		return Resolution{Data: clone(d.Local)}, nil
	}
	return Resolution{Data: clone(d.Server)}, nil
}
