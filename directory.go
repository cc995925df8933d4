// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package voteroom

import (
	"context"
	"sync"

	"github.com/voteroom-foundation/voteroom/ledger"
)

// Directory answers read-only room queries. All methods work without a
// connected wallet.
type Directory struct {
	client *Client
}

// NewDirectory builds a Directory over the client's read handle.
func NewDirectory(client *Client) *Directory {
	return &Directory{client: client}
}

// Room fetches one room record.
func (d *Directory) Room(ctx context.Context, code string) (Room, error) {
	record, err := d.client.Read().GetRoom(ctx, code)
	if err != nil {
		return Room{}, classify("voteroom.Room", err)
	}
	return roomFromRecord(record), nil
}

// Candidates fetches the full candidate list: the count from the room
// record, then one read per index, issued concurrently.
func (d *Directory) Candidates(ctx context.Context, code string) ([]Candidate, error) {
	record, err := d.client.Read().GetRoom(ctx, code)
	if err != nil {
		return nil, classify("voteroom.Candidates", err)
	}
	count := int(record.CandidateCount)
	if count == 0 {
		return nil, nil
	}

	candidates := make([]Candidate, count)
	errs := make([]error, count)
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			candidate, err := d.client.Read().GetCandidate(ctx, code, uint32(index))
			if err != nil {
				errs[index] = err
				return
			}
			candidates[index] = Candidate{
				ID:          candidate.ID,
				Name:        candidate.Name,
				Description: candidate.Description,
				ImageRef:    candidate.ImageRef,
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, classify("voteroom.Candidates", err)
		}
	}
	return candidates, nil
}

// Status reads the participant and vote flags for a wallet, issuing
// both reads in parallel.
func (d *Directory) Status(ctx context.Context, code string, wallet ledger.Address) (ledger.ParticipantStatus, error) {
	var status ledger.ParticipantStatus
	var joinedErr, votedErr error
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		status.IsParticipant, joinedErr = d.client.Read().IsUserParticipant(ctx, code, wallet)
	}()
	go func() {
		defer wg.Done()
		status.HasVoted, votedErr = d.client.Read().HasUserVoted(ctx, code, wallet)
	}()
	wg.Wait()

	if joinedErr != nil {
		return ledger.ParticipantStatus{}, classify("voteroom.Status", joinedErr)
	}
	if votedErr != nil {
		return ledger.ParticipantStatus{}, classify("voteroom.Status", votedErr)
	}
	return status, nil
}

// ActiveRooms enumerates rooms whose end time has not passed.
func (d *Directory) ActiveRooms(ctx context.Context) ([]Room, error) {
	records, err := d.client.Read().ActiveRooms(ctx)
	if err != nil {
		return nil, classify("voteroom.ActiveRooms", err)
	}
	return roomsFromRecords(records), nil
}

// Rooms returns a window over all rooms in creation order.
func (d *Directory) Rooms(ctx context.Context, offset, limit uint32) ([]Room, error) {
	records, err := d.client.Read().RoomsPaginated(ctx, offset, limit)
	if err != nil {
		return nil, classify("voteroom.Rooms", err)
	}
	return roomsFromRecords(records), nil
}

func roomsFromRecords(records []ledger.RoomRecord) []Room {
	if len(records) == 0 {
		return nil
	}
	rooms := make([]Room, len(records))
	for i := range records {
		rooms[i] = roomFromRecord(&records[i])
	}
	return rooms
}
