package orchestrator

import (
	"context"
	"sort"
	"sync"

	"github.com/raywall/fast-doc-pipeline/pkg/controltable"
)

// memRepo reproduz as transições condicionais da tabela de controle em memória.
type memRepo struct {
	mu      sync.Mutex
	records map[string]*controltable.DocumentRecord
	marks   map[string][][]string
	listErr error
	claimFn func(id string) error // falha injetada antes do claim
}

func newMemRepo(ids ...string) *memRepo {
	r := &memRepo{records: map[string]*controltable.DocumentRecord{}, marks: map[string][][]string{}}
	for i, id := range ids {
		r.records[id] = &controltable.DocumentRecord{
			DocumentID: id,
			Status:     controltable.StatusPending,
			Bucket:     "bucket",
			Key:        "in/" + id + ".txt",
			CreatedAt:  string(rune('a' + i)),
		}
	}
	return r
}

func (r *memRepo) get(id string) controltable.DocumentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.records[id]
}

func (r *memRepo) ListPending(_ context.Context, limit int32) ([]controltable.DocumentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []controltable.DocumentRecord
	for _, rec := range r.records {
		if rec.Status == controltable.StatusPending {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) Claim(_ context.Context, id, owner string) (*controltable.DocumentRecord, error) {
	if r.claimFn != nil {
		if err := r.claimFn(id); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, controltable.ErrNotFound
	}
	if rec.Status != controltable.StatusPending {
		return nil, controltable.ErrAlreadyClaimed
	}
	rec.Status = controltable.StatusInProgress
	rec.ClaimedBy = owner
	rec.Attempts++
	cp := *rec
	return &cp, nil
}

func (r *memRepo) owned(id, owner string) (*controltable.DocumentRecord, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, controltable.ErrNotFound
	}
	if rec.Status != controltable.StatusInProgress || rec.ClaimedBy != owner {
		return nil, controltable.ErrNotOwner
	}
	return rec, nil
}

func (r *memRepo) MarkStage(_ context.Context, id, owner string, completed []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.owned(id, owner)
	if err != nil {
		return err
	}
	rec.StagesCompleted = append([]string(nil), completed...)
	r.marks[id] = append(r.marks[id], rec.StagesCompleted)
	return nil
}

func (r *memRepo) Complete(_ context.Context, id, owner string, chunks, vectors int) (*controltable.DocumentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.owned(id, owner)
	if err != nil {
		return nil, err
	}
	rec.Status = controltable.StatusCompleted
	rec.ChunkCount, rec.VectorCount = chunks, vectors
	cp := *rec
	return &cp, nil
}

func (r *memRepo) Fail(_ context.Context, id, owner, stage string, cause error) (*controltable.DocumentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.owned(id, owner)
	if err != nil {
		return nil, err
	}
	rec.Status = controltable.StatusFailed
	rec.ErrorStage, rec.ErrorMessage = stage, cause.Error()
	cp := *rec
	return &cp, nil
}

func (r *memRepo) Release(_ context.Context, id, owner string) (*controltable.DocumentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.owned(id, owner)
	if err != nil {
		return nil, err
	}
	rec.Status = controltable.StatusPending
	rec.ClaimedBy = ""
	cp := *rec
	return &cp, nil
}
