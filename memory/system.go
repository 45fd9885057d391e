package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentmem/embedding"
	"github.com/BaSui01/agentmem/internal/metrics"
	"github.com/BaSui01/agentmem/store"
	"github.com/BaSui01/agentmem/types"
)

// Recall is the grouped result of a retrieval fan-out. Slices are nil when
// a tier contributed nothing.
type Recall struct {
	Working    []AttendedRecord  `json:"working,omitempty"`
	ShortTerm  []*Record         `json:"short_term,omitempty"`
	Episodic   []*EpisodicRecord `json:"episodic,omitempty"`
	Semantic   []*ConceptRecord  `json:"semantic,omitempty"`
	Procedural []*SkillRecord    `json:"procedural,omitempty"`
}

// System is the facade agents use: one instance per agent, owning all five
// tiers and the consolidator. All methods are safe for concurrent use.
type System struct {
	working    *WorkingTier
	shortTerm  *ShortTermTier
	episodic   *EpisodicTier
	semantic   *SemanticTier
	procedural *ProceduralTier
	consolid   *Consolidator

	cfg       Config
	now       func() time.Time
	collector *metrics.Collector
	logger    *zap.Logger

	loopMu   sync.Mutex
	loopStop context.CancelFunc
	loopDone chan struct{}
}

// NewSystem builds the full subsystem: every durable tier loads its
// persisted set from recordStore before the system is usable. A nil
// embedder degrades episodic retrieval to recency ordering; a nil
// collector disables metrics.
func NewSystem(ctx context.Context, cfg Config, embedder embedding.Provider, recordStore store.RecordStore, collector *metrics.Collector, logger *zap.Logger) (*System, error) {
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NopCollector()
	}
	logger = logger.With(zap.String("component", "memory"), zap.String("agent", cfg.AgentID))

	episodic, err := NewEpisodicTier(ctx, cfg, embedder, recordStore, logger)
	if err != nil {
		return nil, err
	}
	semantic, err := NewSemanticTier(ctx, cfg, recordStore, logger)
	if err != nil {
		return nil, err
	}
	procedural, err := NewProceduralTier(ctx, cfg, recordStore, logger)
	if err != nil {
		return nil, err
	}

	shortTerm := NewShortTermTier(cfg, logger)
	s := &System{
		working:    NewWorkingTier(cfg, logger),
		shortTerm:  shortTerm,
		episodic:   episodic,
		semantic:   semantic,
		procedural: procedural,
		consolid:   NewConsolidator(cfg, shortTerm, episodic, semantic, procedural, logger),
		cfg:        cfg,
		now:        cfg.clock(),
		collector:  collector,
		logger:     logger,
	}
	s.updateSizes()
	return s, nil
}

// StoreExperience routes one experience into the tiers it belongs to and
// returns the new record's id. Working and short-term always receive it;
// episodic only above the significance gate; knowledge and skill payloads
// additionally feed the semantic and procedural tiers. Tier failures are
// logged, not returned: ingestion is best-effort by contract, and only a
// cancelled context or an empty payload fails the call.
func (s *System) StoreExperience(ctx context.Context, payload types.ExperiencePayload, recordContext map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if payload.Kind == "" {
		return "", types.NewError(types.ErrInvalidInput, "experience kind is required")
	}

	rec := &Record{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
		Payload:   payload,
		Context:   recordContext,
	}

	s.working.Store(rec)
	s.collector.RecordStore(string(types.MemoryWorking))

	stCopy := *rec
	s.shortTerm.Store(&stCopy)
	s.collector.RecordStore(string(types.MemoryShortTerm))

	episode := &EpisodicRecord{
		Record:       *rec,
		Significance: payload.Significance,
		Emotions:     payload.Emotions,
	}
	stored, err := s.episodic.Store(ctx, episode)
	if err != nil {
		s.logger.Warn("episodic store failed", zap.String("id", rec.ID), zap.Error(err))
	} else if stored {
		s.collector.RecordStore(string(types.MemoryEpisodic))
	}

	if payload.Kind == types.ExperienceKnowledge && payload.Knowledge != nil {
		fact := *payload.Knowledge
		if stored {
			fact.SourceEpisodes = append(append([]string(nil), fact.SourceEpisodes...), rec.ID)
		}
		if _, err := s.semantic.Store(ctx, fact); err != nil {
			s.logger.Warn("semantic store failed", zap.String("id", rec.ID), zap.Error(err))
		} else {
			s.collector.RecordStore(string(types.MemorySemantic))
		}
	}

	if payload.Kind == types.ExperienceSkill && payload.Skill != nil {
		if _, err := s.procedural.Store(ctx, *payload.Skill); err != nil {
			s.logger.Warn("procedural store failed", zap.String("id", rec.ID), zap.Error(err))
		} else {
			s.collector.RecordStore(string(types.MemoryProcedural))
		}
	}

	s.updateSizes()
	return rec.ID, nil
}

// RetrieveRelevant fans the query out to every tier in parallel and
// returns the grouped results. callerContext drives procedural trigger
// matching and may be nil. Per-tier result counts are bounded by the
// configured limits. A tier error does not fail the call; the first one
// is logged and the tier contributes nothing.
func (s *System) RetrieveRelevant(ctx context.Context, query string, callerContext map[string]any) (*Recall, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recall := &Recall{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		recall.Working = s.working.Retrieve(query)
		return nil
	})
	g.Go(func() error {
		results := s.shortTerm.Retrieve(query, 0)
		if len(results) > s.cfg.ShortTermLimit {
			results = results[:s.cfg.ShortTermLimit]
		}
		recall.ShortTerm = results
		return nil
	})
	g.Go(func() error {
		results, err := s.episodic.Retrieve(gctx, query, s.cfg.EpisodicLimit, 0)
		if err != nil {
			s.logger.Warn("episodic retrieval failed", zap.Error(err))
			return nil
		}
		recall.Episodic = results
		return nil
	})
	g.Go(func() error {
		recall.Semantic = s.semantic.Retrieve(gctx, query, "", s.cfg.SemanticLimit)
		return nil
	})
	g.Go(func() error {
		results := s.procedural.Retrieve(gctx, callerContext, 0)
		if len(results) > s.cfg.ProceduralLimit {
			results = results[:s.cfg.ProceduralLimit]
		}
		recall.Procedural = results
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.collector.RecordRetrieved(string(types.MemoryWorking), len(recall.Working))
	s.collector.RecordRetrieved(string(types.MemoryShortTerm), len(recall.ShortTerm))
	s.collector.RecordRetrieved(string(types.MemoryEpisodic), len(recall.Episodic))
	s.collector.RecordRetrieved(string(types.MemorySemantic), len(recall.Semantic))
	s.collector.RecordRetrieved(string(types.MemoryProcedural), len(recall.Procedural))
	return recall, nil
}

// Consolidate runs one full consolidation pass.
func (s *System) Consolidate(ctx context.Context) (*ConsolidationReport, error) {
	report, err := s.consolid.Consolidate(ctx)
	if err != nil {
		return nil, err
	}
	s.collector.ObserveConsolidation(report.Duration)
	for tier, n := range report.Forgotten {
		s.collector.RecordForgotten(string(tier), n)
	}
	s.updateSizes()
	return report, nil
}

// Forget runs a decay sweep across the four decaying tiers at their
// configured thresholds. Aggressive raises every threshold by the
// configured boost. Working memory never forgets; it only rotates.
func (s *System) Forget(ctx context.Context, aggressive bool) (map[types.MemoryCategory]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	boost := 0.0
	if aggressive {
		boost = s.cfg.AggressiveBoost
	}

	counts := map[types.MemoryCategory]int{
		types.MemoryShortTerm: s.shortTerm.Forget(s.cfg.ShortTermForgetThreshold + boost),
	}
	var lastErr error
	if n, err := s.episodic.Forget(ctx, s.cfg.EpisodicForgetThreshold+boost); err != nil {
		lastErr = err
	} else {
		counts[types.MemoryEpisodic] = n
	}
	if n, err := s.semantic.Forget(ctx, s.cfg.SemanticForgetThreshold+boost); err != nil {
		lastErr = err
	} else {
		counts[types.MemorySemantic] = n
	}
	if n, err := s.procedural.Forget(ctx, s.cfg.ProceduralForgetThreshold+boost); err != nil {
		lastErr = err
	} else {
		counts[types.MemoryProcedural] = n
	}

	for tier, n := range counts {
		s.collector.RecordForgotten(string(tier), n)
	}
	s.updateSizes()
	return counts, lastErr
}

// Stats returns a per-tier record count snapshot. Counts are read
// tier-by-tier without a global lock, so concurrent writers can skew the
// total slightly; the snapshot is informational.
func (s *System) Stats() types.MemoryStats {
	byTier := map[types.MemoryCategory]int{
		types.MemoryWorking:    s.working.Size(),
		types.MemoryShortTerm:  s.shortTerm.Size(),
		types.MemoryEpisodic:   s.episodic.Size(),
		types.MemorySemantic:   s.semantic.Size(),
		types.MemoryProcedural: s.procedural.Size(),
	}
	total := 0
	for _, n := range byTier {
		total += n
	}
	return types.MemoryStats{ByTier: byTier, Total: total}
}

// ConceptGraph exports the semantic neighbourhood of root out to the
// configured depth.
func (s *System) ConceptGraph(root string) (*ConceptGraph, error) {
	return s.semantic.ConceptGraph(root, s.cfg.GraphDepth)
}

// Start launches the background consolidation loop. It is a no-op when a
// loop is already running or the interval is not positive.
func (s *System) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.loopStop != nil || s.cfg.ConsolidationInterval <= 0 {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.loopStop = cancel
	s.loopDone = make(chan struct{})

	go func() {
		defer close(s.loopDone)
		ticker := time.NewTicker(s.cfg.ConsolidationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.Consolidate(loopCtx); err != nil && loopCtx.Err() == nil {
					s.logger.Error("background consolidation failed", zap.Error(err))
				}
			}
		}
	}()

	s.logger.Info("consolidation loop started",
		zap.Duration("interval", s.cfg.ConsolidationInterval))
}

// Stop halts the background loop and waits for it to exit.
func (s *System) Stop() {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.loopStop == nil {
		return
	}
	s.loopStop()
	<-s.loopDone
	s.loopStop = nil
	s.loopDone = nil
	s.logger.Info("consolidation loop stopped")
}

func (s *System) updateSizes() {
	s.collector.SetTierSize(string(types.MemoryWorking), s.working.Size())
	s.collector.SetTierSize(string(types.MemoryShortTerm), s.shortTerm.Size())
	s.collector.SetTierSize(string(types.MemoryEpisodic), s.episodic.Size())
	s.collector.SetTierSize(string(types.MemorySemantic), s.semantic.Size())
	s.collector.SetTierSize(string(types.MemoryProcedural), s.procedural.Size())
}
