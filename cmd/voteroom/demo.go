// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/voteroom-foundation/voteroom"
	"github.com/voteroom-foundation/voteroom/cmd/voteroom/cli"
	"github.com/voteroom-foundation/voteroom/fhe"
	"github.com/voteroom-foundation/voteroom/ledger"
	"github.com/voteroom-foundation/voteroom/ledger/ledgertest"
	"github.com/voteroom-foundation/voteroom/lib/secret"
	"github.com/voteroom-foundation/voteroom/votestore"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	roomBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// roomManifest is the JSONC room definition consumed by --manifest.
type roomManifest struct {
	Code            string `json:"code"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	MaxParticipants uint32 `json:"max_participants"`
	Duration        string `json:"duration"`
	Candidates      []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		ImageRef    string `json:"image_ref"`
	} `json:"candidates"`
}

func defaultManifest() roomManifest {
	return roomManifest{
		Code:            "DEMO1",
		Title:           "Team lunch",
		Description:     "Where are we eating on Friday?",
		MaxParticipants: 8,
		Duration:        "1h",
		Candidates: []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			ImageRef    string `json:"image_ref"`
		}{
			{Name: "Ramen"},
			{Name: "Tacos"},
			{Name: "Pizza"},
		},
	}
}

func loadManifest(path string) (roomManifest, error) {
	if path == "" {
		return defaultManifest(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return roomManifest{}, err
	}
	var manifest roomManifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &manifest); err != nil {
		return roomManifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if manifest.Code == "" || len(manifest.Candidates) == 0 {
		return roomManifest{}, fmt.Errorf("manifest %s needs a code and at least one candidate", path)
	}
	return manifest, nil
}

func demoCommand() *cli.Command {
	var manifestPath string
	var passwordFile string
	var storePath string
	var voters int

	return &cli.Command{
		Name:    "demo",
		Summary: "Run the full voting protocol against an in-process chain",
		Description: `Spin up an in-process mock chain and sponsor relay, create a room,
join several wallets (one through the fee-sponsored relay path, the
rest self-paid), cast encrypted ballots, and print the reconciled
session state.

Ballots are sealed with a real encryption pass (age X25519); the
chain never sees a plaintext choice. Each voter's chosen candidate is
recovered from their client-local store, not from the chain.`,
		Usage: "voteroom demo [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("demo", pflag.ContinueOnError)
			flagSet.StringVar(&manifestPath, "manifest", "", "JSONC room manifest (default: built-in lunch vote)")
			flagSet.StringVar(&passwordFile, "password-file", "", "gate the room with the password from this file (\"-\" for stdin)")
			flagSet.StringVar(&storePath, "store", "", "SQLite path for voter stores (default: in-memory)")
			flagSet.IntVar(&voters, "voters", 3, "number of voting wallets")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Open room, three voters", Command: "voteroom demo"},
			{Description: "Password-gated room from a manifest", Command: "voteroom demo --manifest room.jsonc --password-file - <<< hunter2"},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if voters < 1 {
				return fmt.Errorf("--voters must be at least 1")
			}

			manifest, err := loadManifest(manifestPath)
			if err != nil {
				return err
			}

			var password *secret.Buffer
			if passwordFile != "" {
				password, err = secret.ReadFromPath(passwordFile)
				if err != nil {
					return err
				}
				defer password.Close()
			}

			return runDemo(manifest, password, storePath, voters)
		},
	}
}

// demoSigner authorizes sponsored joins for the mock relay, which
// checks only that a signature is present.
type demoSigner struct {
	wallet ledger.Address
}

func (s *demoSigner) Address() ledger.Address { return s.wallet }

func (s *demoSigner) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	return append([]byte("demo:"), message...), nil
}

// startSponsorRelay serves the relay protocol over the mock chain: it
// submits the join on the user's behalf, covering the (zero) fee.
func startSponsorRelay(chain *ledgertest.Ledger, logger *slog.Logger) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			RoomCode    string `json:"roomCode"`
			Password    string `json:"password"`
			UserAddress string `json:"userAddress"`
			Signature   string `json:"signature"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Signature == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		tx, err := chain.Contract(ledger.Address(request.UserAddress)).JoinRoom(r.Context(), request.RoomCode, request.Password)
		if err != nil {
			status := http.StatusConflict
			response := map[string]string{"error": err.Error()}
			if revert := ledger.AsRevert(err); revert != nil {
				response["code"] = revert.Code
			}
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(response)
			return
		}
		logger.Info("sponsored join relayed", "room", request.RoomCode, "user", request.UserAddress)
		json.NewEncoder(w).Encode(map[string]string{"transactionHash": tx.Hash()})
	}))
}

func runDemo(manifest roomManifest, password *secret.Buffer, storePath string, voters int) error {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	duration, err := time.ParseDuration(manifest.Duration)
	if err != nil {
		return fmt.Errorf("manifest duration: %w", err)
	}

	chain := ledgertest.New()
	relayServer := startSponsorRelay(chain, logger)
	defer relayServer.Close()

	encryptor, err := fhe.NewSealedEncryptor()
	if err != nil {
		return err
	}

	newStore := func(name string) (votestore.Store, func(), error) {
		if storePath == "" {
			return votestore.NewMemory(), func() {}, nil
		}
		store, err := votestore.OpenSQLite(fmt.Sprintf("%s.%s", storePath, name), logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}

	newService := func(wallet ledger.Address) (*voteroom.RoomService, func(), error) {
		client, err := voteroom.NewClient(voteroom.ClientConfig{
			Reader:   chain,
			Contract: chain.Contract(wallet),
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, err
		}
		relay, err := voteroom.NewRelayClient(voteroom.RelayConfig{
			URL:        relayServer.URL,
			HTTPClient: relayServer.Client(),
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		store, closeStore, err := newStore(string(wallet))
		if err != nil {
			return nil, nil, err
		}
		service, err := voteroom.NewRoomService(voteroom.ServiceConfig{
			Client:    client,
			Encryptor: encryptor,
			Store:     store,
			Relay:     relay,
			Signer:    &demoSigner{wallet: wallet},
			Logger:    logger,
		})
		if err != nil {
			closeStore()
			return nil, nil, err
		}
		return service, closeStore, nil
	}

	// Create the room atomically with its candidates.
	creator, closeCreator, err := newService("0xcreator")
	if err != nil {
		return err
	}
	defer closeCreator()

	request := voteroom.CreateRoomRequest{
		Code:            manifest.Code,
		Title:           manifest.Title,
		Description:     manifest.Description,
		MaxParticipants: manifest.MaxParticipants,
		Duration:        duration,
		Password:        password,
	}
	candidates := make([]ledger.CandidateParams, len(manifest.Candidates))
	for i, candidate := range manifest.Candidates {
		candidates[i] = ledger.CandidateParams{
			Name:        candidate.Name,
			Description: candidate.Description,
			ImageRef:    candidate.ImageRef,
		}
	}
	if err := creator.CreateRoomWithCandidates(ctx, request, candidates); err != nil {
		return fmt.Errorf("creating room: %w", err)
	}

	room, err := creator.Directory().Room(ctx, manifest.Code)
	if err != nil {
		return err
	}
	printRoom(room, manifest)

	// Every voter drives a full session: load, join, vote. The first
	// voter takes the fee-sponsored path through the relay.
	type voterReport struct {
		wallet   ledger.Address
		strategy voteroom.JoinStrategy
		choice   uint32
		state    voteroom.SessionState
		err      error
	}
	reports := make([]voterReport, 0, voters)

	for i := 0; i < voters; i++ {
		wallet := ledger.Address(fmt.Sprintf("0xv%04d", i+1))
		strategy := voteroom.JoinSelfPaid
		if i == 0 {
			strategy = voteroom.JoinSponsored
		}
		report := voterReport{wallet: wallet, strategy: strategy, choice: uint32(i % len(candidates))}

		service, closeStore, err := newService(wallet)
		if err != nil {
			return err
		}

		report.err = func() error {
			session, err := voteroom.NewSession(voteroom.SessionConfig{
				Service:  service,
				RoomCode: manifest.Code,
				Wallet:   wallet,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			defer session.Close()

			if err := waitReady(session); err != nil {
				return err
			}
			if err := session.Join(ctx, password, strategy); err != nil {
				return err
			}
			if err := session.Vote(ctx, report.choice, nil); err != nil {
				return err
			}
			report.state = session.Snapshot()
			return nil
		}()
		closeStore()
		reports = append(reports, report)
	}

	fmt.Println(headerStyle.Render("Voters"))
	for _, report := range reports {
		line := fmt.Sprintf("  %s  %-10s", report.wallet, report.strategy)
		if report.err != nil {
			fmt.Println(line, failStyle.Render(fmt.Sprintf("failed: %v", report.err)))
			continue
		}
		name := candidates[report.choice].Name
		fmt.Println(line, okStyle.Render(fmt.Sprintf("voted %q (from local store: %v)", name, *report.state.RememberedCandidate)))
	}

	total, estimated, err := creator.TotalVotes(ctx, manifest.Code)
	if err != nil {
		return err
	}
	suffix := ""
	if estimated {
		suffix = " (estimated)"
	}
	fmt.Println()
	fmt.Println(headerStyle.Render("Tally"))
	fmt.Printf("  %d ballot(s) accepted%s\n", total, suffix)
	fmt.Println(subtleStyle.Render("  per-candidate counts stay encrypted until off-chain tallying"))
	return nil
}

func waitReady(session *voteroom.Session) error {
	for {
		state, ok := <-session.Updates()
		if !ok {
			return fmt.Errorf("session closed before load finished")
		}
		switch state.Phase {
		case voteroom.PhaseReady:
			return nil
		case voteroom.PhaseLoadFailed:
			return state.LoadErr
		}
	}
}

func printRoom(room voteroom.Room, manifest roomManifest) {
	gate := "open"
	if room.HasPassword {
		gate = "password-gated"
	}
	lines := fmt.Sprintf("%s\n%s\n%s",
		titleStyle.Render(room.Title),
		room.Description,
		subtleStyle.Render(fmt.Sprintf("code %s · %s · up to %d participants · closes %s",
			room.Code, gate, room.MaxParticipants, room.EndTime.Format(time.Kitchen))),
	)
	fmt.Println(roomBoxStyle.Render(lines))

	fmt.Println(headerStyle.Render("Candidates"))
	for i, candidate := range manifest.Candidates {
		fmt.Printf("  %d. %s\n", i, candidate.Name)
	}
	fmt.Println()
}
