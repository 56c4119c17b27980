package service

import (
	"context"
	"fmt"

	"dkp-ledger/internal/cache"
	"dkp-ledger/internal/config"
	"dkp-ledger/internal/constants"
	"dkp-ledger/internal/domain"
	"dkp-ledger/internal/ledger"
	"dkp-ledger/internal/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Store is the read surface of the raw event store the service depends
// on. The engine never writes through it; all mutation lives in
// external officer tooling.
type Store interface {
	Characters(ctx context.Context) ([]store.CharacterRow, error)
	CharacterAccounts(ctx context.Context) ([]store.CharacterAccountRow, error)
	Accounts(ctx context.Context) ([]store.AccountRow, error)
	RaidEvents(ctx context.Context) ([]store.RaidEventRow, error)
	RaidAttendance(ctx context.Context) ([]store.RaidAttendanceRow, error)
	RaidEventAttendance(ctx context.Context) ([]store.RaidEventAttendanceRow, error)
	RaidLoot(ctx context.Context) ([]store.RaidLootRow, error)
	RaidLootSince(ctx context.Context, afterID int64) ([]store.RaidLootRow, error)
	RaidsByIDs(ctx context.Context, raidIDs []int64) ([]store.RaidRow, error)
	Adjustments(ctx context.Context) ([]store.AdjustmentRow, error)
	ActiveRaiders(ctx context.Context) ([]store.ActiveRaiderRow, error)
	CharacterSummaries(ctx context.Context) ([]store.CharacterSummaryRow, error)
	PeriodTotals(ctx context.Context) ([]store.PeriodTotalRow, error)
	MaterializeSummary(ctx context.Context) error
}

// SnapshotStore persists the last-good snapshot across restarts.
type SnapshotStore interface {
	Save(ctx context.Context, snap *domain.Snapshot) error
	Load(ctx context.Context) (*domain.Snapshot, error)
}

type LeaderboardService struct {
	store  Store
	cache  *cache.SnapshotCache
	repo   SnapshotStore
	clock  cache.Clock
	cfg    *config.Config
	logger zerolog.Logger
}

func NewLeaderboardService(st Store, snapCache *cache.SnapshotCache, repo SnapshotStore, clock cache.Clock, cfg *config.Config, logger zerolog.Logger) *LeaderboardService {
	return &LeaderboardService{store: st, cache: snapCache, repo: repo, clock: clock, cfg: cfg, logger: logger}
}

// CharacterLeaderboard returns the per-character ledger rows. With
// includeHidden false the default activity filter applies; hidden rows
// stay fully queryable with includeHidden true.
func (s *LeaderboardService) CharacterLeaderboard(ctx context.Context, includeHidden bool) ([]domain.LedgerRow, domain.PeriodTotals, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, domain.PeriodTotals{}, err
	}
	if includeHidden {
		return snap.Characters, snap.Periods, nil
	}

	filter := ledger.NewActivityFilter(s.clock.Now(), s.cfg.ActiveDays)
	rows := make([]domain.LedgerRow, 0, len(snap.Characters))
	for _, row := range snap.Characters {
		if filter.VisibleCharacter(row) {
			rows = append(rows, row)
		}
	}
	return rows, snap.Periods, nil
}

// AccountLeaderboard returns the account rollup rows, filtered the same
// way as the character view.
func (s *LeaderboardService) AccountLeaderboard(ctx context.Context, includeHidden bool) ([]domain.AccountRow, domain.PeriodTotals, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, domain.PeriodTotals{}, err
	}
	if includeHidden {
		return snap.Accounts, snap.Periods, nil
	}

	filter := ledger.NewActivityFilter(s.clock.Now(), s.cfg.ActiveDays)
	rows := make([]domain.AccountRow, 0, len(snap.Accounts))
	for _, row := range snap.Accounts {
		if filter.VisibleAccount(row) {
			rows = append(rows, row)
		}
	}
	return rows, snap.Periods, nil
}

// Recompute invalidates the cache and forces a full re-derivation. It
// is idempotent and race-safe against a concurrently in-flight
// background load; the last snapshot written wins. With materialize
// set, the store's summary refresh is triggered first as an opaque
// signal; its failure degrades rather than blocking the recompute.
func (s *LeaderboardService) Recompute(ctx context.Context, materialize bool) (*domain.Snapshot, error) {
	if materialize {
		if err := s.store.MaterializeSummary(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("materialize summary trigger failed, recomputing anyway")
		}
	}
	s.cache.Invalidate()
	return s.recompute(ctx)
}

// Restore loads the persisted snapshot into the cache so a restarted
// process serves data before its first recompute. The restored snapshot
// is typically already expired; it becomes the incremental base.
func (s *LeaderboardService) Restore(ctx context.Context) {
	if s.repo == nil {
		return
	}
	snap, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to restore persisted snapshot")
		return
	}
	if snap != nil {
		s.cache.Set(snap)
	}
}

// snapshot serves the freshness policy: a fresh snapshot is returned
// without any refetch, an expired one is caught up incrementally from
// the loot watermark, and an absent one triggers a full recompute.
func (s *LeaderboardService) snapshot(ctx context.Context) (*domain.Snapshot, error) {
	if snap, ok := s.cache.Get(); ok {
		return snap, nil
	}
	if last := s.cache.Last(); last != nil {
		return s.incremental(ctx, last)
	}
	return s.recompute(ctx)
}

type rawTables struct {
	characters      []store.CharacterRow
	links           []store.CharacterAccountRow
	accounts        []store.AccountRow
	events          []store.RaidEventRow
	raidAttendance  []store.RaidAttendanceRow
	eventAttendance []store.RaidEventAttendanceRow
	loot            []store.RaidLootRow
	adjustments     []store.AdjustmentRow
}

// recompute reads every raw table and derives a fresh snapshot. The
// primary reads run concurrently and must all succeed before any
// aggregation starts; a single failure aborts the pass and leaves the
// last-good cache untouched.
func (s *LeaderboardService) recompute(ctx context.Context) (*domain.Snapshot, error) {
	passID, _ := gonanoid.New()
	logger := s.logger.With().Str("pass_id", passID).Logger()
	logger.Info().Msg("starting full recompute")

	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	var raw rawTables
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { raw.characters, err = s.store.Characters(gCtx); return })
	g.Go(func() (err error) { raw.links, err = s.store.CharacterAccounts(gCtx); return })
	g.Go(func() (err error) { raw.accounts, err = s.store.Accounts(gCtx); return })
	g.Go(func() (err error) { raw.events, err = s.store.RaidEvents(gCtx); return })
	g.Go(func() (err error) { raw.raidAttendance, err = s.store.RaidAttendance(gCtx); return })
	g.Go(func() (err error) { raw.eventAttendance, err = s.store.RaidEventAttendance(gCtx); return })
	g.Go(func() (err error) { raw.loot, err = s.store.RaidLoot(gCtx); return })
	g.Go(func() (err error) { raw.adjustments, err = s.store.Adjustments(gCtx); return })
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("primary fetch failed, keeping last-good snapshot")
		return nil, fmt.Errorf("fetch raw tables: %w", err)
	}

	// Non-essential reads degrade: missing summaries render zero
	// windows, missing period totals render em dashes, a missing
	// allow-list falls back to recency alone.
	summaries, err := s.store.CharacterSummaries(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("character summaries unavailable, windows degrade to zero")
		summaries = nil
	}
	allow, err := s.store.ActiveRaiders(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("active raider list unavailable, using recency only")
		allow = nil
	}
	periods, err := s.fetchPeriods(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("period totals unavailable, cells render as dashes")
		periods = domain.PeriodTotals{}
	}

	res := ledger.NewResolver(raw.characters, raw.raidAttendance)
	rows := ledger.Aggregate(ledger.Input{
		Characters:      raw.characters,
		Events:          raw.events,
		EventAttendance: raw.eventAttendance,
		RaidAttendance:  raw.raidAttendance,
		Loot:            raw.loot,
		Adjustments:     raw.adjustments,
	}, res, logger)
	ledger.ApplyWindows(rows, summaries, res, logger)
	ledger.Annotate(rows, raw.links, raw.accounts, allow)
	accounts := ledger.Rollup(rows, raw.links, raw.accounts, logger)

	var maxLootID int64
	for _, l := range raw.loot {
		if l.ID.Int64() > maxLootID {
			maxLootID = l.ID.Int64()
		}
	}

	snap := &domain.Snapshot{
		Characters: rows,
		Accounts:   accounts,
		Periods:    periods,
		NameToID:   res.Export(),
		MaxLootID:  maxLootID,
		FetchedAt:  s.clock.Now(),
	}

	return s.commit(ctx, snap, logger)
}

// incremental catches an expired snapshot up by fetching only loot rows
// above the watermark plus the raid metadata those rows reference, then
// merging into the cached set. The rollup is always rebuilt whole from
// refetched link data; patching it would risk drift.
func (s *LeaderboardService) incremental(ctx context.Context, last *domain.Snapshot) (*domain.Snapshot, error) {
	passID, _ := gonanoid.New()
	logger := s.logger.With().Str("pass_id", passID).Logger()
	logger.Info().Int64("after_loot_id", last.MaxLootID).Msg("starting incremental catch-up")

	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	var (
		newLoot  []store.RaidLootRow
		links    []store.CharacterAccountRow
		accounts []store.AccountRow
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { newLoot, err = s.store.RaidLootSince(gCtx, last.MaxLootID); return })
	g.Go(func() (err error) { links, err = s.store.CharacterAccounts(gCtx); return })
	g.Go(func() (err error) { accounts, err = s.store.Accounts(gCtx); return })
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("incremental fetch failed, keeping last-good snapshot")
		return nil, fmt.Errorf("fetch loot delta: %w", err)
	}

	var raids []store.RaidRow
	if len(newLoot) > 0 {
		var err error
		raids, err = s.store.RaidsByIDs(ctx, distinctRaidIDs(newLoot))
		if err != nil {
			logger.Error().Err(err).Msg("raid metadata fetch failed, keeping last-good snapshot")
			return nil, fmt.Errorf("fetch raid metadata: %w", err)
		}
	}

	rows := cloneRows(last.Characters)
	res := ledger.RestoreResolver(last.NameToID)
	rows, maxID := ledger.MergeLoot(rows, newLoot, raids, res, logger)
	if maxID < last.MaxLootID {
		maxID = last.MaxLootID
	}

	accountRows := ledger.Rollup(rows, links, accounts, logger)

	snap := &domain.Snapshot{
		Characters: rows,
		Accounts:   accountRows,
		Periods:    last.Periods,
		NameToID:   res.Export(),
		MaxLootID:  maxID,
		FetchedAt:  s.clock.Now(),
	}

	logger.Info().Int("new_loot_rows", len(newLoot)).Msg("incremental catch-up complete")
	return s.commit(ctx, snap, logger)
}

// commit publishes a finished snapshot. The cancellation flag is
// observed first: an abandoned load must not mutate any state.
func (s *LeaderboardService) commit(ctx context.Context, snap *domain.Snapshot, logger zerolog.Logger) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		logger.Warn().Err(err).Msg("load cancelled, discarding computed snapshot")
		return nil, err
	}
	s.cache.Set(snap)

	if s.repo != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DatabaseTimeout)
		defer cancel()
		if err := s.repo.Save(saveCtx, snap); err != nil {
			logger.Warn().Err(err).Msg("failed to persist snapshot")
		}
	}

	logger.Info().
		Int("characters", len(snap.Characters)).
		Int("accounts", len(snap.Accounts)).
		Msg("snapshot published")
	return snap, nil
}

func (s *LeaderboardService) fetchPeriods(ctx context.Context) (domain.PeriodTotals, error) {
	rows, err := s.store.PeriodTotals(ctx)
	if err != nil {
		return domain.PeriodTotals{}, err
	}
	var periods domain.PeriodTotals
	for _, r := range rows {
		switch r.WindowDays.Int64() {
		case 30:
			periods.Days30 = r.TotalEarned.Float()
		case 60:
			periods.Days60 = r.TotalEarned.Float()
		}
	}
	return periods, nil
}

func distinctRaidIDs(loot []store.RaidLootRow) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, l := range loot {
		id := l.RaidID.Int64()
		if id != 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func cloneRows(rows []domain.LedgerRow) []domain.LedgerRow {
	out := make([]domain.LedgerRow, len(rows))
	copy(out, rows)
	for i := range out {
		if out[i].LastActivity != nil {
			t := *out[i].LastActivity
			out[i].LastActivity = &t
		}
	}
	return out
}
