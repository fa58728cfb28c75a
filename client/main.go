package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/network"
)

const usage = `commands:
  start <names,of,team1> <names,of,team2> ...   start a match, one argument per team
  join <match_id> [player_id]
  next | pause | resume | nextturn | nextround | get | abandon | leave
  guess <team_id> | pass <team_id>
  endturn [carried_seconds] | endround [carried_seconds]
  carried <player_id>
  stats <player_key> | board <metric>`

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

// current 当前跟随的对局
type current struct {
	mu      sync.Mutex
	matchID string
}

func (c *current) set(id string) {
	c.mu.Lock()
	c.matchID = id
	c.mu.Unlock()
}

func (c *current) get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matchID
}

func startRequest(args []string) network.StartMatchRequest {
	var req network.StartMatchRequest
	for i, arg := range args {
		team := models.Team{ID: fmt.Sprintf("t%d", i+1), Name: fmt.Sprintf("Team %d", i+1)}
		for _, name := range strings.Split(arg, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			id := fmt.Sprintf("p%d", len(req.Players)+1)
			req.Players = append(req.Players, models.Player{ID: id, Name: name, TeamID: team.ID})
			team.PlayerIDs = append(team.PlayerIDs, id)
		}
		req.Teams = append(req.Teams, team)
	}
	return req
}

func optionalInt(args []string) *int {
	if len(args) == 0 {
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return nil
	}
	return &n
}

func command(c *websocket.Conn, cur *current, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}
	matchReq := network.MatchRequest{MatchID: cur.get()}

	switch cmd {
	case "start":
		return send(c, network.MsgTypeStartMatch, startRequest(args))
	case "join":
		cur.set(arg(0))
		return send(c, network.MsgTypeJoinMatch, network.JoinMatchRequest{MatchID: arg(0), PlayerID: arg(1)})
	case "leave":
		return send(c, network.MsgTypeLeaveMatch, matchReq)
	case "next":
		return send(c, network.MsgTypeNextWord, matchReq)
	case "guess":
		return send(c, network.MsgTypeWordGuessed, network.TeamRequest{MatchID: cur.get(), TeamID: arg(0)})
	case "pass":
		return send(c, network.MsgTypeWordPassed, network.TeamRequest{MatchID: cur.get(), TeamID: arg(0)})
	case "pause":
		return send(c, network.MsgTypePause, matchReq)
	case "resume":
		return send(c, network.MsgTypeResume, matchReq)
	case "endturn":
		return send(c, network.MsgTypeEndPlayerTurn, network.EndPlayerTurnRequest{MatchID: cur.get(), CarriedSeconds: optionalInt(args)})
	case "nextturn":
		return send(c, network.MsgTypeStartNextPlayerTurn, matchReq)
	case "endround":
		return send(c, network.MsgTypeEndRound, network.EndRoundRequest{MatchID: cur.get(), CarriedSeconds: optionalInt(args)})
	case "nextround":
		return send(c, network.MsgTypeNextRound, matchReq)
	case "carried":
		return send(c, network.MsgTypeConsumeCarriedTime, network.ConsumeCarriedTimeRequest{MatchID: cur.get(), PlayerID: arg(0)})
	case "abandon":
		return send(c, network.MsgTypeAbandonMatch, matchReq)
	case "get":
		return send(c, network.MsgTypeGetMatch, matchReq)
	case "stats":
		return send(c, network.MsgTypeGetPlayerStats, network.PlayerStatsRequest{PlayerKey: arg(0)})
	case "board":
		return send(c, network.MsgTypeGetLeaderboard, network.LeaderboardRequest{Metric: arg(0)})
	default:
		fmt.Println(usage)
	}
	return nil
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	cur := &current{}
	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			if len(message) < 4 {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			msgID := binary.BigEndian.Uint16(message[0:2])
			data := message[4:]
			if msgID == network.MsgTypeMatchState {
				var snap models.MatchSnapshot
				if err := json.Unmarshal(data, &snap); err == nil {
					cur.set(snap.ID)
					log.Printf("<- match %s round %d phase %s player %s word %q scores %v",
						snap.ID, snap.RoundIndex, snap.Phase, snap.CurrentPlayerID, snap.CurrentWord, snap.Scores)
					continue
				}
			}
			log.Printf("<- RECV (ID: %d): %s", msgID, string(data))
		}
	}()

	fmt.Println(usage)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// Write loop
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := command(c, cur, line); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
