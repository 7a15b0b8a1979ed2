package service

import (
	"bytes"
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tapkind/internal/leaderboard"
	"tapkind/internal/report"
	"tapkind/internal/view"
)

const boardBuildTimeout = 30 * time.Second

type LeaderboardView struct {
	leaderboard.Board
	Me       *leaderboard.Entry `json:"me"`
	Progress *int               `json:"rank_progress"`
}

// Leaderboard returns the ranking for window. Results are reused for leaderboard.cache_ttl,
// concurrent refreshes share one computation, and a computation that was overtaken by a
// write is discarded.
func (s *Service) Leaderboard(ctx context.Context, window leaderboard.Window) (leaderboard.Board, error) {
	st, ok := s.boards[window]
	if !ok {
		return leaderboard.Board{}, validation("unknown leaderboard window")
	}
	if ttl := s.Config.Leaderboard.CacheTTL; ttl > 0 {
		if board, ok := st.Fresh(s.now(), ttl); ok {
			return board, nil
		}
	}

	// The shared build is detached from the caller that started it; each caller waits on its own ctx.
	ch := s.flight.DoChan(string(window), func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), boardBuildTimeout)
		defer cancel()
		token := st.Begin()
		board, err := s.buildBoard(bctx, window)
		if err != nil {
			st.Dispatch(view.LoadFailed{Token: token, Err: err})
			return nil, err
		}
		snap := st.Dispatch(view.LoadSucceeded[leaderboard.Board]{Token: token, Data: board, At: s.now()})
		if snap.Token != token {
			s.Log.Debug("leaderboard refresh overtaken", zap.String("window", string(window)))
		}
		return board, nil
	})
	select {
	case <-ctx.Done():
		return leaderboard.Board{}, &Error{Kind: KindTransport, Message: "load leaderboard", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return leaderboard.Board{}, res.Err
		}
		return res.Val.(leaderboard.Board), nil
	}
}

func (s *Service) buildBoard(ctx context.Context, window leaderboard.Window) (leaderboard.Board, error) {
	now := s.now()
	var in leaderboard.Input
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.Activity, err = s.Store.ListActivitySince(gctx, window.Since(now))
		return fromStore("load activity", err)
	})
	g.Go(func() (err error) {
		in.Profiles, err = s.Store.ListProfiles(gctx)
		return fromStore("load profiles", err)
	})
	g.Go(func() (err error) {
		in.Tips, err = s.Store.ListTips(gctx)
		return fromStore("load tips", err)
	})
	g.Go(func() (err error) {
		in.Checkins, err = s.Store.ListCheckins(gctx)
		return fromStore("load check-ins", err)
	})
	g.Go(func() (err error) {
		in.Earned, err = s.Store.ListAllEarnedBadges(gctx)
		return fromStore("load badges", err)
	})
	if err := g.Wait(); err != nil {
		return leaderboard.Board{}, err
	}
	return leaderboard.Build(window, in, now), nil
}

// LeaderboardFor is the ranking plus the caller's own entry and progress towards the next rank.
func (s *Service) LeaderboardFor(ctx context.Context, userID string, window leaderboard.Window) (LeaderboardView, error) {
	board, err := s.Leaderboard(ctx, window)
	if err != nil {
		return LeaderboardView{}, err
	}
	v := LeaderboardView{Board: board}
	if entry, ok := board.Lookup(userID); ok {
		v.Me = &entry
		v.Progress = board.Progress(userID)
	}
	if v.Entries == nil {
		v.Entries = []leaderboard.Entry{}
	}
	return v, nil
}

// ExportLeaderboard renders the ranking as an xlsx workbook.
func (s *Service) ExportLeaderboard(ctx context.Context, window leaderboard.Window) (*bytes.Buffer, string, error) {
	board, err := s.Leaderboard(ctx, window)
	if err != nil {
		return nil, "", err
	}
	buf, name, err := report.LeaderboardXLSX(board)
	if err != nil {
		s.Log.Error("leaderboard export failed", zap.Error(err))
		return nil, "", err
	}
	return buf, name, nil
}

// invalidateBoards drops cached rankings after a write. Bumping the token makes any refresh
// still in flight land as stale.
func (s *Service) invalidateBoards() {
	for window, st := range s.boards {
		st.Begin()
		st.Dispatch(view.Invalidated{})
		s.flight.Forget(string(window))
	}
}
