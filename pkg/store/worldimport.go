package store

import (
	"fmt"
	"log"

	bbolt "go.etcd.io/bbolt"

	"github.com/emberfall-mud/emberfall/pkg/world"
)

// ImportWorld persists a snapshot of the room graph. The snapshot lets the
// server boot without the original world file once it has been loaded once.
func (s *Store) ImportWorld(w *world.World) error {
	rooms := w.Rooms()
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRooms)
		for _, r := range rooms {
			rec := &roomRecord{
				ID:          r.ID,
				Name:        r.Name,
				Description: r.Description,
				Exits:       make(map[string]string),
			}
			for _, e := range w.OpenExits(r.ID) {
				rec.Exits[e.Direction] = e.To
			}
			data, err := encodeRoom(rec)
			if err != nil {
				return fmt.Errorf("store: encode room %q: %w", r.ID, err)
			}
			if err := b.Put([]byte(r.ID), data); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMeta).Put(keyWorldImported, []byte("1"))
	})
	if err != nil {
		return fmt.Errorf("store: import world: %w", err)
	}
	log.Printf("store: imported %d rooms", len(rooms))
	return nil
}

// HasWorld reports whether a world snapshot has been imported.
func (s *Store) HasWorld() bool {
	var ok bool
	s.bolt.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket(bucketMeta).Get(keyWorldImported) != nil
		return nil
	})
	return ok
}

// LoadWorld rebuilds the room graph from the stored snapshot.
func (s *Store) LoadWorld() (*world.World, error) {
	w := world.New()
	var recs []*roomRecord
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRooms).ForEach(func(_, data []byte) error {
			rec, err := decodeRoom(data)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: load world: %w", err)
	}

	// Rooms first so exits can resolve in either direction.
	for _, rec := range recs {
		w.AddRoom(&world.Room{ID: rec.ID, Name: rec.Name, Description: rec.Description})
	}
	for _, rec := range recs {
		for dir, dest := range rec.Exits {
			if err := w.AddExit(rec.ID, dir, dest); err != nil {
				return nil, err
			}
		}
	}
	return w, nil
}
