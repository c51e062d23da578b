// Package spool provides a local durable queue the agent falls back to when
// the bus is unreachable, so publishes survive a restart instead of being
// dropped, per the at-least-once delivery goal for host agents.
package spool

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

const bucketName = "pending"

// Spool is a bbolt-backed FIFO of (subject, payload) pairs awaiting publish.
type Spool struct {
	db *bbolt.DB
}

type entry struct {
	Subject string
	Payload []byte
}

func Open(path string) (*Spool, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init spool bucket: %w", err)
	}

	return &Spool{db: db}, nil
}

func (s *Spool) Close() error {
	return s.db.Close()
}

// Enqueue appends a (subject, payload) pair, durable across process restarts.
func (s *Spool) Enqueue(subject string, payload []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := sequenceKey(seq)
		return b.Put(key, encodeEntry(entry{Subject: subject, Payload: payload}))
	})
}

// Len returns the number of pending entries.
func (s *Spool) Len() int {
	n := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(bucketName)).Stats().KeyN
		return nil
	})
	return n
}

// Drain calls publish for every pending entry in insertion order, removing
// each entry only after publish succeeds. It stops at the first failure so
// ordering and at-least-once delivery are preserved across restarts.
func (s *Spool) Drain(publish func(subject string, payload []byte) error) error {
	for {
		var key []byte
		var e entry
		found := false

		err := s.db.View(func(tx *bbolt.Tx) error {
			c := tx.Bucket([]byte(bucketName)).Cursor()
			k, v := c.First()
			if k == nil {
				return nil
			}
			found = true
			key = append([]byte(nil), k...)
			var derr error
			e, derr = decodeEntry(v)
			return derr
		})
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		if err := publish(e.Subject, e.Payload); err != nil {
			return err
		}

		if err := s.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket([]byte(bucketName)).Delete(key)
		}); err != nil {
			return err
		}
	}
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func encodeEntry(e entry) []byte {
	subjectLen := len(e.Subject)
	buf := make([]byte, 4+subjectLen+len(e.Payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(subjectLen))
	copy(buf[4:4+subjectLen], e.Subject)
	copy(buf[4+subjectLen:], e.Payload)
	return buf
}

func decodeEntry(buf []byte) (entry, error) {
	if len(buf) < 4 {
		return entry{}, fmt.Errorf("spool entry too short")
	}
	subjectLen := int(binary.BigEndian.Uint32(buf[:4]))
	if len(buf) < 4+subjectLen {
		return entry{}, fmt.Errorf("spool entry truncated")
	}
	subject := string(buf[4 : 4+subjectLen])
	payload := append([]byte(nil), buf[4+subjectLen:]...)
	return entry{Subject: subject, Payload: payload}, nil
}
