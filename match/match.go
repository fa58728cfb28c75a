package match

import (
	"math/rand"
	"time"

	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/state"
)

const (
	defaultRoundDuration = 30
	// carriedTimeFloor is the minimum carried time at the start of rounds 1 and 2.
	carriedTimeFloor = 5
)

// Shuffler reorders a word slice in place.
type Shuffler func(words []string)

// FisherYates shuffles words uniformly with math/rand.
func FisherYates(words []string) {
	rand.Shuffle(len(words), func(i, j int) {
		words[i], words[j] = words[j], words[i]
	})
}

type Option func(*Match)

// WithShuffler replaces the pool shuffle, e.g. with a no-op in tests.
func WithShuffler(s Shuffler) Option {
	return func(m *Match) { m.shuffle = s }
}

// WithClock replaces time.Now for event and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Match) { m.now = now }
}

// Match is the authoritative state of one match. It is not safe for
// concurrent use; callers serialize operations per match.
type Match struct {
	id      string
	players []models.Player
	byID    map[string]int
	teams   []models.Team
	teamIdx map[string]int
	options models.MatchOptions
	phase   *state.BaseStateMachine

	roundIndex      int
	order           turnOrder
	currentPlayerID string
	nextPlayerID    string

	currentWord           string
	currentWordFromMissed bool
	roundExhausted        bool
	selectedWords         []string
	availableWords        []string
	usedWords             []string
	passedLog             []models.PassedEntry

	scores      map[string]int
	roundScores map[int]map[string]int
	playerStats map[string]*models.PlayerMatchStats
	carriedTime map[string]int
	missedWords map[string][]string

	paused         bool
	handoffPending bool

	shuffle Shuffler
	now     func() time.Time
	outbox  []Event
}

// New creates an empty match in AwaitingStart.
func New(id string, opts ...Option) *Match {
	m := &Match{
		id:          id,
		phase:       state.NewMatchStateMachine(),
		byID:        make(map[string]int),
		teamIdx:     make(map[string]int),
		scores:      make(map[string]int),
		roundScores: make(map[int]map[string]int),
		playerStats: make(map[string]*models.PlayerMatchStats),
		carriedTime: make(map[string]int),
		missedWords: make(map[string][]string),
		shuffle:     FisherYates,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize validates and installs the rosters and zeroes all counters.
// Player keys are derived when the caller did not supply one.
func (m *Match) Initialize(players []models.Player, teams []models.Team, options models.MatchOptions) error {
	if m.phase.GetCurrentState() != state.AwaitingStart {
		return m.transitionError("initialize", "match already started")
	}

	roster, byID, teamIdx, err := validateRoster(players, teams)
	if err != nil {
		return err
	}

	if options.RoundDuration <= 0 {
		options.RoundDuration = defaultRoundDuration
	}
	options.LastRoundIndex = models.Rounds(options.LastRound())

	m.players = roster
	m.byID = byID
	m.teams = cloneTeams(teams)
	m.teamIdx = teamIdx
	m.options = options
	m.roundIndex = 0
	m.usedWords = nil
	m.passedLog = nil
	m.scores = make(map[string]int, len(teams))
	m.roundScores = map[int]map[string]int{0: {}}
	for _, t := range m.teams {
		m.scores[t.ID] = 0
		m.roundScores[0][t.ID] = 0
	}
	m.playerStats = make(map[string]*models.PlayerMatchStats, len(roster))
	for _, p := range roster {
		m.playerStats[p.ID] = &models.PlayerMatchStats{}
	}
	m.carriedTime = make(map[string]int)
	m.missedWords = make(map[string][]string)
	m.currentPlayerID = ""
	m.nextPlayerID = ""
	m.handoffPending = false
	m.order = turnOrder{}
	return nil
}

func validateRoster(players []models.Player, teams []models.Team) ([]models.Player, map[string]int, map[string]int, error) {
	if len(teams) == 0 {
		return nil, nil, nil, &InvalidRosterError{Reason: "no teams"}
	}

	roster := make([]models.Player, len(players))
	byID := make(map[string]int, len(players))
	for i, p := range players {
		if p.ID == "" {
			return nil, nil, nil, &InvalidRosterError{Reason: "player without id"}
		}
		if _, dup := byID[p.ID]; dup {
			return nil, nil, nil, &InvalidRosterError{Reason: "duplicate player " + p.ID}
		}
		if p.Key == "" {
			p.Key = models.PlayerKey(p.ExternalID, p.Name)
		}
		roster[i] = p
		byID[p.ID] = i
	}

	teamIdx := make(map[string]int, len(teams))
	onTeam := make(map[string]string, len(players))
	for i, t := range teams {
		if t.ID == "" {
			return nil, nil, nil, &InvalidRosterError{Reason: "team without id"}
		}
		if _, dup := teamIdx[t.ID]; dup {
			return nil, nil, nil, &InvalidRosterError{Reason: "duplicate team " + t.ID}
		}
		teamIdx[t.ID] = i
		if len(t.PlayerIDs) == 0 {
			return nil, nil, nil, &InvalidRosterError{Reason: "team " + t.ID + " is empty"}
		}
		for _, pid := range t.PlayerIDs {
			idx, ok := byID[pid]
			if !ok {
				return nil, nil, nil, &InvalidRosterError{Reason: "team " + t.ID + " references unknown player " + pid}
			}
			if other, taken := onTeam[pid]; taken {
				return nil, nil, nil, &InvalidRosterError{Reason: "player " + pid + " is on teams " + other + " and " + t.ID}
			}
			onTeam[pid] = t.ID
			switch roster[idx].TeamID {
			case "":
				roster[idx].TeamID = t.ID
			case t.ID:
			default:
				return nil, nil, nil, &InvalidRosterError{Reason: "player " + pid + " claims team " + roster[idx].TeamID + " but is listed on " + t.ID}
			}
		}
	}
	for _, p := range roster {
		if _, ok := onTeam[p.ID]; !ok {
			return nil, nil, nil, &InvalidRosterError{Reason: "player " + p.ID + " is not on any team"}
		}
	}
	return roster, byID, teamIdx, nil
}

// SetSelectedWords fixes the match sample and fills the round pool with it.
func (m *Match) SetSelectedWords(words []string) error {
	if m.phase.GetCurrentState() != state.AwaitingStart {
		return m.transitionError("set_selected_words", "match already started")
	}
	if len(words) == 0 {
		return &EmptyWordPoolError{MatchID: m.id}
	}
	m.selectedWords = append([]string(nil), words...)
	m.availableWords = append([]string(nil), words...)
	return nil
}

// Start opens round 0 for the first player of the turn order.
func (m *Match) Start() error {
	if !m.phase.CanChange(state.RoundInProgress) || m.phase.GetCurrentState() != state.AwaitingStart {
		return m.transitionError("start", "match already started")
	}
	if len(m.teams) == 0 {
		return &InvalidRosterError{Reason: "match not initialized"}
	}
	if len(m.availableWords) == 0 {
		return &EmptyWordPoolError{MatchID: m.id}
	}
	if m.currentPlayerID == "" {
		if err := m.InitializeTurnOrder(); err != nil {
			return err
		}
	}

	m.phase.ChangeState(state.RoundInProgress)
	at := m.now()
	m.emit(MatchStarted{MatchID: m.id, Players: m.Players(), Teams: m.Teams(), At: at})
	m.emit(TurnStarted{MatchID: m.id, PlayerID: m.currentPlayerID, RoundIndex: m.roundIndex, At: at})
	m.ShuffleAvailableWords()
	m.drawWord()
	return nil
}

// ShuffleAvailableWords reorders the round pool.
func (m *Match) ShuffleAvailableWords() {
	if len(m.availableWords) > 1 {
		m.shuffle(m.availableWords)
	}
}

// NextWord returns the word the current player should describe, drawing one
// if needed. An empty word means the round pool is exhausted.
func (m *Match) NextWord() (string, error) {
	if err := m.requireActiveTurn("next_word"); err != nil {
		return "", err
	}
	if len(m.availableWords) == 0 {
		m.currentWord = ""
		m.currentWordFromMissed = false
		m.roundExhausted = true
		return "", nil
	}
	word, fromMissed := m.pickWord()
	if word == m.currentWord {
		return word, nil
	}
	m.showWord(word, fromMissed)
	return word, nil
}

// drawWord picks and shows the next word, or marks the round exhausted.
func (m *Match) drawWord() string {
	if len(m.availableWords) == 0 {
		m.currentWord = ""
		m.currentWordFromMissed = false
		m.roundExhausted = true
		return ""
	}
	word, fromMissed := m.pickWord()
	m.showWord(word, fromMissed)
	return word
}

// pickWord prefers the first pool word the current player has not passed.
// When every remaining word is one they passed, the head of the pool is
// served anyway so the turn never stalls.
func (m *Match) pickWord() (string, bool) {
	if m.currentPlayerID == "" {
		return m.availableWords[0], false
	}
	missed := m.missedWords[m.currentPlayerID]
	for _, w := range m.availableWords {
		if !contains(missed, w) {
			return w, false
		}
	}
	return m.availableWords[0], true
}

func (m *Match) showWord(word string, fromMissed bool) {
	m.currentWord = word
	m.currentWordFromMissed = fromMissed
	m.roundExhausted = false
	m.emit(WordShown{
		MatchID:    m.id,
		PlayerID:   m.currentPlayerID,
		Word:       word,
		RoundIndex: m.roundIndex,
		FromMissed: fromMissed,
		At:         m.now(),
	})
}

// WordGuessed scores the current word for teamID, removes it from the pool
// and draws the next one. It reports whether the round pool is now empty.
func (m *Match) WordGuessed(teamID string) (bool, error) {
	if err := m.requireScorable("word_guessed", teamID); err != nil {
		return false, err
	}

	word := m.currentWord
	m.scores[teamID]++
	m.roundScore()[teamID]++
	if ps, ok := m.playerStats[m.currentPlayerID]; ok {
		ps.Guessed++
		ps.NetScore++
	}
	m.availableWords = remove(m.availableWords, word)
	m.usedWords = append(m.usedWords, word)

	m.emit(WordGuessed{
		MatchID:    m.id,
		PlayerID:   m.currentPlayerID,
		TeamID:     teamID,
		Word:       word,
		RoundIndex: m.roundIndex,
		At:         m.now(),
	})
	return m.drawWord() == "", nil
}

// WordPassed penalizes teamID, moves the current word to the back of the pool
// and remembers it as missed by the current player. A pass never empties
// the pool.
func (m *Match) WordPassed(teamID string) error {
	if err := m.requireScorable("word_passed", teamID); err != nil {
		return err
	}

	word := m.currentWord
	at := m.now()
	m.scores[teamID]--
	m.roundScore()[teamID]--
	if ps, ok := m.playerStats[m.currentPlayerID]; ok {
		ps.Passed++
		ps.NetScore--
	}
	m.availableWords = append(remove(m.availableWords, word), word)
	if m.currentPlayerID != "" && !contains(m.missedWords[m.currentPlayerID], word) {
		m.missedWords[m.currentPlayerID] = append(m.missedWords[m.currentPlayerID], word)
	}
	m.passedLog = append(m.passedLog, models.PassedEntry{
		Word:      word,
		PlayerID:  m.currentPlayerID,
		TeamID:    teamID,
		Timestamp: at,
	})

	m.emit(WordPassed{
		MatchID:    m.id,
		PlayerID:   m.currentPlayerID,
		TeamID:     teamID,
		Word:       word,
		RoundIndex: m.roundIndex,
		At:         at,
	})
	m.drawWord()
	return nil
}

// EndPlayerTurn stops the current turn. The word on screen stays in the pool
// for whoever describes next. carried, when non-nil, is stored as the
// player's carried time; timedOutRemaining is forwarded to the stats session.
func (m *Match) EndPlayerTurn(carried *int, timedOutRemaining *float64) error {
	if err := m.requireActiveTurn("end_player_turn"); err != nil {
		return err
	}

	ended := m.currentPlayerID
	if carried != nil && ended != "" {
		m.carriedTime[ended] = *carried
	}
	m.currentWord = ""
	m.currentWordFromMissed = false
	m.SwitchToNextPlayer()
	m.handoffPending = true

	m.emit(TurnEnded{
		MatchID:           m.id,
		PlayerID:          ended,
		NextPlayerID:      m.nextPlayerID,
		RoundIndex:        m.roundIndex,
		TimedOutRemaining: timedOutRemaining,
		At:                m.now(),
	})
	return nil
}

// StartNextPlayerTurn hands the turn to the player chosen at EndPlayerTurn.
func (m *Match) StartNextPlayerTurn() error {
	if m.phase.GetCurrentState() != state.RoundInProgress {
		return m.transitionError("start_next_player_turn", "round not in progress")
	}
	if !m.handoffPending || m.nextPlayerID == "" {
		return m.transitionError("start_next_player_turn", "no handoff pending")
	}

	m.currentPlayerID = m.nextPlayerID
	m.nextPlayerID = ""
	m.handoffPending = false
	m.ShuffleAvailableWords()

	m.emit(TurnStarted{
		MatchID:        m.id,
		PlayerID:       m.currentPlayerID,
		RoundIndex:     m.roundIndex,
		CarriedSeconds: m.carriedTime[m.currentPlayerID],
		Paused:         m.paused,
		At:             m.now(),
	})
	if m.currentWord == "" {
		m.drawWord()
	}
	return nil
}

// EndRound closes the current round. If a handoff is pending the waiting
// player becomes the describer of the next round; otherwise the current
// turn ends here and carried, when non-nil, is stored for that player.
func (m *Match) EndRound(carried *int) error {
	if !m.phase.CanChange(state.RoundCompleted) {
		return m.transitionError("end_round", "round not in progress")
	}

	at := m.now()
	if m.handoffPending {
		m.currentPlayerID = m.nextPlayerID
		m.nextPlayerID = ""
		m.handoffPending = false
	} else {
		if carried != nil && m.currentPlayerID != "" {
			m.carriedTime[m.currentPlayerID] = *carried
		}
		m.emit(TurnEnded{
			MatchID:    m.id,
			PlayerID:   m.currentPlayerID,
			RoundIndex: m.roundIndex,
			At:         at,
		})
	}
	m.currentWord = ""
	m.currentWordFromMissed = false
	m.phase.ChangeState(state.RoundCompleted)

	m.emit(RoundEnded{
		MatchID:     m.id,
		RoundIndex:  m.roundIndex,
		RoundScores: copyScores(m.roundScore()),
		Scores:      copyScores(m.scores),
		At:          at,
	})
	return nil
}

// StartNextRound advances the round index and either opens the next round
// or completes the match. It reports whether the match is complete.
func (m *Match) StartNextRound() (bool, error) {
	if m.phase.GetCurrentState() != state.RoundCompleted {
		return false, m.transitionError("start_next_round", "round not completed")
	}

	m.roundIndex++
	if m.roundIndex == 1 || m.roundIndex == 2 {
		for pid, secs := range m.carriedTime {
			if secs > 0 && secs < carriedTimeFloor {
				m.carriedTime[pid] = carriedTimeFloor
			}
		}
	}

	at := m.now()
	if m.roundIndex > m.options.LastRound() {
		m.phase.ChangeState(state.MatchCompleted)
		m.currentWord = ""
		m.currentWordFromMissed = false
		m.carriedTime = make(map[string]int)
		m.missedWords = make(map[string][]string)
		m.paused = false
		m.emit(MatchEnded{
			MatchID:     m.id,
			Players:     m.Players(),
			Teams:       m.Teams(),
			RoundScores: m.RoundScores(),
			Scores:      copyScores(m.scores),
			At:          at,
		})
		return true, nil
	}

	m.usedWords = nil
	m.passedLog = nil
	m.availableWords = append([]string(nil), m.selectedWords...)
	scores := make(map[string]int, len(m.teams))
	for _, t := range m.teams {
		scores[t.ID] = 0
	}
	m.roundScores[m.roundIndex] = scores
	m.phase.ChangeState(state.RoundInProgress)
	m.ShuffleAvailableWords()

	m.emit(RoundStarted{MatchID: m.id, RoundIndex: m.roundIndex, At: at})
	m.emit(TurnStarted{
		MatchID:        m.id,
		PlayerID:       m.currentPlayerID,
		RoundIndex:     m.roundIndex,
		CarriedSeconds: m.carriedTime[m.currentPlayerID],
		Paused:         m.paused,
		At:             at,
	})
	m.drawWord()
	return false, nil
}

// Pause marks the match paused. Pausing twice is a no-op.
func (m *Match) Pause() error {
	if err := m.requireLive("pause"); err != nil {
		return err
	}
	if m.paused {
		return nil
	}
	m.paused = true
	m.emit(Paused{MatchID: m.id, At: m.now()})
	return nil
}

// Resume clears the paused flag. Resuming a running match is a no-op.
func (m *Match) Resume() error {
	if err := m.requireLive("resume"); err != nil {
		return err
	}
	if !m.paused {
		return nil
	}
	m.paused = false
	m.emit(Resumed{MatchID: m.id, At: m.now()})
	return nil
}

// CarriedTime returns the seconds a player carries into their next turn.
func (m *Match) CarriedTime(playerID string) int {
	return m.carriedTime[playerID]
}

// ConsumeCarriedTime returns and clears a player's carried time.
func (m *Match) ConsumeCarriedTime(playerID string) int {
	secs := m.carriedTime[playerID]
	delete(m.carriedTime, playerID)
	return secs
}

// DrainEvents returns the events recorded since the last drain.
func (m *Match) DrainEvents() []Event {
	events := m.outbox
	m.outbox = nil
	return events
}

func (m *Match) emit(ev Event) {
	m.outbox = append(m.outbox, ev)
}

func (m *Match) roundScore() map[string]int {
	scores, ok := m.roundScores[m.roundIndex]
	if !ok {
		scores = make(map[string]int)
		m.roundScores[m.roundIndex] = scores
	}
	return scores
}

func (m *Match) requireLive(op string) error {
	switch m.phase.GetCurrentState() {
	case state.AwaitingStart:
		return m.transitionError(op, "match not started")
	case state.MatchCompleted:
		return m.transitionError(op, "match completed")
	}
	return nil
}

func (m *Match) requireActiveTurn(op string) error {
	if m.phase.GetCurrentState() != state.RoundInProgress {
		return m.transitionError(op, "round not in progress")
	}
	if m.handoffPending {
		return m.transitionError(op, "handoff pending")
	}
	return nil
}

func (m *Match) requireScorable(op, teamID string) error {
	if err := m.requireActiveTurn(op); err != nil {
		return err
	}
	if teamID == "" {
		return m.transitionError(op, "team id required")
	}
	if _, ok := m.teamIdx[teamID]; !ok {
		return m.transitionError(op, "unknown team "+teamID)
	}
	if m.currentWord == "" {
		return m.transitionError(op, "no current word")
	}
	return nil
}

func (m *Match) transitionError(op, reason string) error {
	return &InvalidTransitionError{Op: op, Phase: m.phase.GetCurrentState(), Reason: reason}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// remove drops the first occurrence of s, keeping order.
func remove(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

func copyScores(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneTeams(teams []models.Team) []models.Team {
	out := make([]models.Team, len(teams))
	for i, t := range teams {
		t.PlayerIDs = append([]string(nil), t.PlayerIDs...)
		out[i] = t
	}
	return out
}
