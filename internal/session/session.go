// Package session runs battles. Each battle is owned by one actor goroutine
// that serializes joins, lifecycle transitions and epoch ticks; readers get
// an immutable copy of the last committed snapshot without going through it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/nfrund/hexarena/internal/broadcast"
	"github.com/nfrund/hexarena/internal/decision"
	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/epoch"
	"github.com/nfrund/hexarena/internal/phase"
	"github.com/nfrund/hexarena/internal/storage"
)

// ErrClosed is returned by operations on a session that has been shut down.
var ErrClosed = errors.New("battle session closed")

// Session is one battle.
type Session struct {
	id     string
	opts   Options
	deps   Deps
	log    *slog.Logger
	tracer trace.Tracer
	gather decision.Gatherer
	bc     *broadcast.Broadcaster

	inbox     chan func()
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup

	// Owned by the actor goroutine.
	snap  Snapshot
	ids   *IDMap
	timer *time.Timer

	published atomic.Pointer[Snapshot]
}

// New creates a battle in LOBBY and persists it. The caller owns Close.
func New(ctx context.Context, cfg domain.LobbyConfig, opts Options, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	opts = opts.withDefaults()
	now := opts.Now()

	snap := Snapshot{
		ID:        cfg.ID,
		Status:    domain.StatusLobby,
		Config:    cfg,
		State:     epoch.State{Assets: slices.Clone(cfg.Assets), Seed: seed},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s := newSession(snap, NewIDMap(nil), opts, deps.withDefaults(seed))
	if err := s.commit(ctx, snap, s.ids, s.lobbyEvent(snap)); err != nil {
		s.bc.Close()
		s.cancel()
		return nil, err
	}
	s.start()
	return s, nil
}

// Restore rebuilds a battle from its persisted record and resumes any
// pending countdown or epoch timer. Overdue wake-ups fire immediately.
func Restore(rec storage.Record, opts Options, deps Deps) (*Session, error) {
	var snap Snapshot
	if err := json.Unmarshal(rec.Blob, &snap); err != nil {
		return nil, fmt.Errorf("decode battle %s: %w", rec.BattleID, err)
	}
	if snap.ID != rec.BattleID {
		return nil, fmt.Errorf("decode battle %s: snapshot carries id %q", rec.BattleID, snap.ID)
	}
	s := newSession(snap, NewIDMap(rec.NumericIDs), opts.withDefaults(), deps.withDefaults(snap.State.Seed))
	s.published.Store(ptr(snap.Clone()))
	s.start()
	if err := s.call(context.Background(), s.arm); err != nil {
		return nil, err
	}
	s.log.Info("Battle restored", "status", snap.Status, "epoch", snap.State.Epoch, "seq", snap.Seq)
	return s, nil
}

func newSession(snap Snapshot, ids *IDMap, opts Options, deps Deps) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	log := deps.Logger.With("battle_id", snap.ID)
	bopts := deps.Broadcast
	bopts.Logger = log
	s := &Session{
		id:     snap.ID,
		opts:   opts,
		deps:   deps,
		log:    log,
		tracer: deps.Tracer,
		gather: decision.Gatherer{
			Provider: deps.Decisions,
			Timeout:  opts.DecisionTimeout,
			Tracer:   deps.Tracer,
			Logger:   log,
		},
		bc:     broadcast.New(bopts),
		inbox:  make(chan func()),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		snap:   snap,
		ids:    ids,
	}
	if deps.Observers != nil {
		for _, obs := range deps.Observers(snap.ID) {
			s.bc.Attach(obs)
		}
	}
	return s
}

func ptr[T any](v T) *T { return &v }

func (s *Session) start() {
	s.wg.Add(1)
	go s.loop()
}

func (s *Session) loop() {
	defer s.wg.Done()
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.done:
			return
		}
	}
}

// call runs fn on the actor and waits for it to finish.
func (s *Session) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.inbox <- wrapped:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// post hands fn to the actor without waiting. It gives up once the session
// is closed.
func (s *Session) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

// ID returns the battle id.
func (s *Session) ID() string { return s.id }

// State returns a copy of the last committed snapshot.
func (s *Session) State() Snapshot {
	return s.published.Load().Clone()
}

// Phase reports the battle's position in its phase schedule.
func (s *Session) Phase() PhaseInfo {
	return s.published.Load().PhaseInfo()
}

// NumericID returns the small stable number assigned to a participant.
func (s *Session) NumericID(ctx context.Context, participantID string) (int, bool, error) {
	var (
		n  int
		ok bool
	)
	err := s.call(ctx, func() { n, ok = s.ids.Lookup(participantID) })
	return n, ok, err
}

// Join adds a participant. The fifth participant starts the countdown.
func (s *Session) Join(ctx context.Context, req domain.JoinRequest) (domain.Participant, error) {
	if err := req.Validate(); err != nil {
		return domain.Participant{}, err
	}
	var (
		p     domain.Participant
		opErr error
	)
	if err := s.call(ctx, func() { p, opErr = s.join(ctx, req) }); err != nil {
		return domain.Participant{}, err
	}
	return p, opErr
}

func (s *Session) join(ctx context.Context, req domain.JoinRequest) (domain.Participant, error) {
	status := s.snap.Status
	if !status.Joinable() {
		return domain.Participant{}, domain.NewStateTransitionError("join", status, "")
	}
	if len(s.snap.State.Participants) >= domain.MaxParticipants {
		return domain.Participant{}, domain.NewStateTransitionError("join", status, "battle is full")
	}
	fold := cases.Fold()
	name := fold.String(req.Name)
	for _, existing := range s.snap.State.Participants {
		if req.ID != "" && existing.ID == req.ID {
			return domain.Participant{}, fmt.Errorf("participant %s: %w", req.ID, domain.ErrAlreadyExists)
		}
		if fold.String(existing.Name) == name {
			return domain.Participant{}, fmt.Errorf("participant name %q: %w", req.Name, domain.ErrAlreadyExists)
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.opts.Now()
	next := s.snap.Clone()
	p := domain.NewParticipant(id, req.Name, req.Archetype, next.JoinSeq)
	next.JoinSeq++
	next.State.Participants = append(next.State.Participants, p)
	ids := s.ids.Clone()
	ids.Assign(id)

	events := []broadcast.Event{s.lobbyEvent(next)}
	if next.Status == domain.StatusLobby && len(next.State.Participants) >= domain.JoinThreshold {
		ends := now.Add(s.opts.Countdown)
		next.Status = domain.StatusCountdown
		next.CountdownEndsAt = timePtr(ends)
		next.NextWakeAt = timePtr(ends)
		next.WakeToken++
		events = append(events, broadcast.Event{
			Type:    broadcast.CountdownStarted,
			Payload: CountdownPayload{EndsAt: ends, Participants: len(next.State.Participants)},
		})
	}
	if err := s.commit(ctx, next, ids, events...); err != nil {
		return domain.Participant{}, err
	}
	s.arm()
	s.log.Info("Participant joined", "participant_id", id, "archetype", req.Archetype,
		"participants", len(next.State.Participants), "status", next.Status)
	return p, nil
}

// StartImmediate activates a battle without waiting for the countdown.
func (s *Session) StartImmediate(ctx context.Context) error {
	var opErr error
	if err := s.call(ctx, func() {
		status := s.snap.Status
		switch {
		case !status.Joinable():
			opErr = domain.NewStateTransitionError("start", status, "")
		case len(s.snap.State.Participants) < domain.MinToStart:
			opErr = domain.NewStateTransitionError("start", status,
				fmt.Sprintf("need at least %d participants", domain.MinToStart))
		default:
			opErr = s.activate(ctx)
		}
	}); err != nil {
		return err
	}
	return opErr
}

// Cancel abandons a battle that has not started.
func (s *Session) Cancel(ctx context.Context, reason string) error {
	var opErr error
	if err := s.call(ctx, func() {
		status := s.snap.Status
		if !status.Joinable() {
			opErr = domain.NewStateTransitionError("cancel", status, "")
			return
		}
		next := s.snap.Clone()
		next.Status = domain.StatusCancelled
		next.EndedAt = timePtr(s.opts.Now())
		next.CountdownEndsAt = nil
		next.NextWakeAt = nil
		next.WakeToken++
		opErr = s.commit(ctx, next, s.ids, broadcast.Event{
			Type:    broadcast.BattleCancelled,
			Payload: CancelledPayload{Reason: reason},
		})
		if opErr == nil {
			s.arm()
			s.log.Info("Battle cancelled", "reason", reason)
		}
	}); err != nil {
		return err
	}
	return opErr
}

// Tick runs whatever step is pending: activation at the end of a countdown
// or the next epoch. It is a no-op once the battle has finished. In manual
// mode this is the only way a battle advances.
func (s *Session) Tick(ctx context.Context) error {
	var opErr error
	if err := s.call(ctx, func() { opErr = s.step(ctx) }); err != nil {
		return err
	}
	return opErr
}

// Attach subscribes an observer. Its first event is a state_snapshot of the
// battle and its phase as of the last committed event.
func (s *Session) Attach(ctx context.Context, obs broadcast.Observer) error {
	return s.call(ctx, func() {
		s.bc.Attach(obs, broadcast.Event{
			ID:       uuid.NewString(),
			BattleID: s.id,
			Seq:      s.snap.Seq,
			Type:     broadcast.StateSnapshot,
			Epoch:    s.snap.State.Epoch,
			At:       s.opts.Now(),
			Payload:  StatePayload{Snapshot: s.snap.Clone(), Phase: s.snap.PhaseInfo()},
		})
	})
}

// Detach unsubscribes an observer.
func (s *Session) Detach(id string) {
	s.bc.Detach(id)
}

// Close stops the actor and any pending timer and waits for in-flight
// completion hooks. The persisted state is left as is.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.call(context.Background(), func() {
			if s.timer != nil {
				s.timer.Stop()
				s.timer = nil
			}
		})
		close(s.done)
		s.cancel()
		s.wg.Wait()
		s.bc.Close()
	})
}

func (s *Session) step(ctx context.Context) error {
	switch s.snap.Status {
	case domain.StatusCountdown:
		return s.activate(ctx)
	case domain.StatusActive:
		return s.tick(ctx)
	default:
		return nil
	}
}

// wake is what an armed timer delivers. A token from an earlier schedule
// means the wake-up was superseded.
func (s *Session) wake(token uint64) {
	if token != s.snap.WakeToken || s.snap.Status.Terminal() {
		return
	}
	if err := s.step(s.ctx); err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.log.Error("Battle step failed, retrying", "status", s.snap.Status,
			"epoch", s.snap.State.Epoch+1, "retry_in", s.opts.RetryDelay, "error", err)
		s.schedule(s.opts.RetryDelay, token)
	}
}

// arm schedules the wake-up recorded in the committed snapshot.
func (s *Session) arm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.opts.Manual || s.snap.NextWakeAt == nil || s.snap.Status.Terminal() {
		return
	}
	s.schedule(max(0, s.snap.NextWakeAt.Sub(s.opts.Now())), s.snap.WakeToken)
}

func (s *Session) schedule(d time.Duration, token uint64) {
	if s.opts.Manual {
		return
	}
	s.timer = time.AfterFunc(d, func() {
		s.post(func() { s.wake(token) })
	})
}

func (s *Session) activate(ctx context.Context) error {
	cur := s.snap
	opening, err := s.deps.Market.Snapshot(ctx, cur.State.Assets)
	if err != nil {
		return fmt.Errorf("opening market snapshot: %w", err)
	}
	state, err := epoch.Start(cur.State.Participants, cur.State.Assets, cur.State.Seed, opening)
	if err != nil {
		return fmt.Errorf("lay out arena: %w", err)
	}

	now := s.opts.Now()
	first := now.Add(s.opts.EpochInterval)
	next := cur.Clone()
	next.Status = domain.StatusActive
	next.State = state
	next.StartedAt = timePtr(now)
	next.CountdownEndsAt = nil
	next.NextWakeAt = timePtr(first)
	next.WakeToken++

	if err := s.commit(ctx, next, s.ids, broadcast.Event{
		Type: broadcast.BattleStarted,
		Payload: StartedPayload{
			Schedule:     state.Schedule,
			Participants: slices.Clone(state.Participants),
			Tiles:        state.Arena.Tiles(),
			FirstEpochAt: first,
		},
	}); err != nil {
		return err
	}
	s.arm()
	s.log.Info("Battle started", "participants", len(state.Participants), "total_epochs", state.Schedule.Total)
	return nil
}

func (s *Session) tick(ctx context.Context) (err error) {
	cur := s.snap.State.Clone()
	epochNo := cur.Epoch + 1

	ctx, span := s.tracer.Start(ctx, "battle.tick", trace.WithAttributes(
		attribute.String("battle.id", s.id),
		attribute.Int("battle.epoch", epochNo),
		attribute.String("battle.phase", string(cur.Phase())),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	decisions := s.gather.Gather(ctx, s.requests(cur))

	end, err := s.deps.Market.Snapshot(ctx, cur.Assets)
	if err != nil {
		return fmt.Errorf("epoch %d market snapshot: %w", epochNo, err)
	}

	var sponsors map[string]domain.SponsorEffect
	if s.deps.Sponsors != nil {
		sponsors, err = s.deps.Sponsors.EffectsFor(ctx, s.id, epochNo)
		if err != nil {
			s.log.Warn("Sponsor effects unavailable", "epoch", epochNo, "error", err)
			sponsors = nil
		}
	}

	res, state, err := epoch.Process(epoch.Input{
		State:     cur,
		Decisions: decisions,
		Market:    end,
		Sponsors:  sponsors,
	})
	if err != nil {
		return err
	}

	now := s.opts.Now()
	next := s.snap.Clone()
	next.State = state
	if res.Complete {
		next.Status = domain.StatusCompleted
		next.Winner = res.Winner
		next.EndedAt = timePtr(now)
		next.NextWakeAt = nil
		next.WakeToken++
	} else {
		next.NextWakeAt = timePtr(now.Add(s.opts.EpochInterval))
		next.WakeToken++
	}

	if err := s.commit(ctx, next, s.ids, broadcast.Sequence(res, state.Arena.Tiles())...); err != nil {
		return err
	}
	if s.deps.Sponsors != nil {
		if err := s.deps.Sponsors.Ack(ctx, s.id, epochNo); err != nil {
			s.log.Warn("Failed to acknowledge sponsor effects", "epoch", epochNo, "error", err)
		}
	}
	span.SetAttributes(attribute.Int("battle.alive", len(state.AliveIDs())))
	s.arm()

	s.log.Info("Epoch committed", "epoch", res.Epoch, "phase", res.Phase,
		"alive", len(state.AliveIDs()), "deaths", len(res.Deaths))
	if res.Complete {
		s.log.Info("Battle completed", "winner", res.Winner, "epoch", res.Epoch, "timeout", res.Timeout)
		s.complete(res)
	}
	return nil
}

// requests builds one decision request per living participant.
func (s *Session) requests(st epoch.State) []decision.Request {
	alive := st.AliveIDs()
	tiles := st.Arena.Tiles()
	ph := st.Phase()
	reqs := make([]decision.Request, 0, len(alive))
	for _, id := range alive {
		var others []domain.Participant
		for _, other := range alive {
			if other != id {
				others = append(others, st.Participant(other).Clone())
			}
		}
		reqs = append(reqs, decision.Request{
			BattleID:   s.id,
			Epoch:      st.Epoch + 1,
			Phase:      ph,
			HazardRing: phase.HazardRing(ph),
			Self:       st.Participant(id).Clone(),
			Others:     others,
			Tiles:      tiles,
			Market:     st.Market.Clone(),
			Assets:     slices.Clone(st.Assets),
		})
	}
	return reqs
}

// commit stamps events with the next sequence numbers, persists next and
// only then makes it current and publishes. Nothing changes if persisting
// fails.
func (s *Session) commit(ctx context.Context, next Snapshot, ids *IDMap, events ...broadcast.Event) error {
	now := s.opts.Now()
	next.UpdatedAt = now
	for i := range events {
		next.Seq++
		events[i].ID = uuid.NewString()
		events[i].BattleID = s.id
		events[i].Seq = next.Seq
		events[i].At = now
		if events[i].Epoch == 0 {
			events[i].Epoch = next.State.Epoch
		}
	}

	blob, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode battle %s: %w", s.id, err)
	}
	if err := s.deps.Store.Save(ctx, storage.Record{
		BattleID:   s.id,
		Status:     string(next.Status),
		Blob:       blob,
		NumericIDs: ids.Map(),
		UpdatedAt:  now,
	}); err != nil {
		return fmt.Errorf("persist battle %s: %w", s.id, err)
	}

	s.snap = next
	s.ids = ids
	s.published.Store(ptr(next.Clone()))
	s.bc.Publish(events...)
	return nil
}

func (s *Session) lobbyEvent(snap Snapshot) broadcast.Event {
	return broadcast.Event{
		Type: broadcast.LobbyUpdate,
		Payload: LobbyPayload{
			Status:       snap.Status,
			Participants: slices.Clone(snap.State.Participants),
			Threshold:    domain.JoinThreshold,
			Capacity:     domain.MaxParticipants,
		},
	}
}

// complete fires the completion hooks. Each runs on its own goroutine with
// its own deadline; a failing or panicking hook is only logged.
func (s *Session) complete(res epoch.Result) {
	c := Completion{
		BattleID: s.id,
		Winner:   res.Winner,
		Epoch:    res.Epoch,
		Timeout:  res.Timeout,
	}
	for _, p := range res.Participants {
		n, _ := s.ids.Lookup(p.ID)
		c.Participants = append(c.Participants, ParticipantSummary{
			ID:             p.ID,
			NumericID:      n,
			Name:           p.Name,
			Archetype:      string(p.Archetype),
			HP:             p.HP,
			Alive:          p.Alive,
			Kills:          p.Kills,
			EpochsSurvived: p.EpochsSurvived,
		})
	}

	for i, hook := range s.deps.Hooks {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("Completion hook panicked", "hook", i, "panic", r)
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.HookTimeout)
			defer cancel()
			if err := hook(ctx, c); err != nil {
				s.log.Error("Completion hook failed", "hook", i, "error", err)
			}
		}()
	}
}
