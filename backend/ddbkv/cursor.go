package ddbkv

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

func (t *transaction) Scan(ctx context.Context, cf backend.TxCf, keys backend.KeyRange) (backend.Cursor, error) {
	name := cf.Name()
	ddb := &ddbCursor{t: t, cf: name, keys: keys}

	var overlay []backend.Entry
	for ik, w := range t.writes {
		if w.cf != name {
			continue
		}
		_ = ik
		if !inRange(w.key, keys) {
			continue
		}
		if w.deleted {
			overlay = append(overlay, backend.Entry{Key: w.key, Value: nil})
			continue
		}
		overlay = append(overlay, backend.Entry{Key: w.key, Value: w.value})
	}
	sort.Slice(overlay, func(i, j int) bool { return bytes.Compare(overlay[i].Key, overlay[j].Key) < 0 })

	return &mergeCursor{ddb: ddb, overlay: overlay}, nil
}

func (t *transaction) ScanPrefix(ctx context.Context, cf backend.TxCf, prefix []byte) (backend.Cursor, error) {
	return t.Scan(ctx, cf, backend.PrefixRange(prefix))
}

func inRange(key []byte, r backend.KeyRange) bool {
	switch r.Start.Kind {
	case backend.Inclusive:
		if bytes.Compare(key, r.Start.Key) < 0 {
			return false
		}
	case backend.Exclusive:
		if bytes.Compare(key, r.Start.Key) <= 0 {
			return false
		}
	}
	switch r.End.Kind {
	case backend.Inclusive:
		if bytes.Compare(key, r.End.Key) > 0 {
			return false
		}
	case backend.Exclusive:
		if bytes.Compare(key, r.End.Key) >= 0 {
			return false
		}
	}
	return true
}

// ddbCursor pages through a DynamoDB Query against one CF's partition,
// using BETWEEN/comparator key conditions when the range narrows it
// and filtering the remainder (a BETWEEN's inclusive ends, in
// particular) client-side to respect exact Inclusive/Exclusive
// semantics — DynamoDB's KeyConditionExpression grammar has no
// exclusive-bound comparator pair of its own.
type ddbCursor struct {
	t    *transaction
	cf   string
	keys backend.KeyRange

	buf         []backend.Entry
	i           int
	lastKey     map[string]types.AttributeValue
	done        bool
	startedScan bool
}

func (c *ddbCursor) fetchPage(ctx context.Context) error {
	cond := "#pk = :pk"
	names := map[string]string{"#pk": attrPK}
	values := map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: c.cf}}

	switch {
	case c.keys.Start.Kind != backend.Unbounded && c.keys.End.Kind != backend.Unbounded:
		cond += " AND #sk BETWEEN :start AND :end"
		names["#sk"] = attrSK
		values[":start"] = &types.AttributeValueMemberB{Value: c.keys.Start.Key}
		values[":end"] = &types.AttributeValueMemberB{Value: c.keys.End.Key}
	case c.keys.Start.Kind == backend.Inclusive:
		cond += " AND #sk >= :start"
		names["#sk"] = attrSK
		values[":start"] = &types.AttributeValueMemberB{Value: c.keys.Start.Key}
	case c.keys.Start.Kind == backend.Exclusive:
		cond += " AND #sk > :start"
		names["#sk"] = attrSK
		values[":start"] = &types.AttributeValueMemberB{Value: c.keys.Start.Key}
	case c.keys.End.Kind == backend.Inclusive:
		cond += " AND #sk <= :end"
		names["#sk"] = attrSK
		values[":end"] = &types.AttributeValueMemberB{Value: c.keys.End.Key}
	case c.keys.End.Kind == backend.Exclusive:
		cond += " AND #sk < :end"
		names["#sk"] = attrSK
		values[":end"] = &types.AttributeValueMemberB{Value: c.keys.End.Key}
	}

	out, err := c.t.backend.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(c.t.backend.table),
		KeyConditionExpression:    aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ExclusiveStartKey:         c.lastKey,
	})
	if err != nil {
		return backend.WrapCf(c.cf, fmt.Errorf("query: %w", err))
	}

	c.buf = c.buf[:0]
	for _, item := range out.Items {
		skAttr, ok := item[attrSK].(*types.AttributeValueMemberB)
		if !ok {
			continue
		}
		valAttr, ok := item[attrValue].(*types.AttributeValueMemberB)
		if !ok {
			continue
		}
		if !inRange(skAttr.Value, c.keys) {
			continue
		}
		c.buf = append(c.buf, backend.Entry{Key: skAttr.Value, Value: valAttr.Value})
	}
	c.i = 0
	c.lastKey = out.LastEvaluatedKey
	if c.lastKey == nil {
		c.done = true
	}
	return nil
}

// peek returns the next DB-sourced entry without consuming it, paging
// in more results as needed. ok is false once the partition's range is
// exhausted.
func (c *ddbCursor) peek(ctx context.Context) (backend.Entry, bool, error) {
	for c.i >= len(c.buf) {
		if c.done && c.lastKey == nil && c.startedScan {
			return backend.Entry{}, false, nil
		}
		c.startedScan = true
		if err := c.fetchPage(ctx); err != nil {
			return backend.Entry{}, false, err
		}
		if len(c.buf) == 0 && c.lastKey == nil {
			return backend.Entry{}, false, nil
		}
	}
	return c.buf[c.i], true, nil
}

func (c *ddbCursor) advance() { c.i++ }

// mergeCursor overlays a transaction's own buffered writes on top of a
// ddbCursor's committed view, so a transaction observes its own Puts
// and Deletes before they reach DynamoDB: check the overlay before
// falling back to the iterator, the same read-your-writes pattern
// Get uses.
type mergeCursor struct {
	ddb     *ddbCursor
	overlay []backend.Entry
	oi      int

	entry backend.Entry
	err   error
	done  bool
}

func (m *mergeCursor) Next(ctx context.Context) bool {
	if m.done || m.err != nil {
		return false
	}
	for {
		dbEntry, dbOK, err := m.ddb.peek(ctx)
		if err != nil {
			m.err = err
			return false
		}

		var ovEntry backend.Entry
		ovOK := m.oi < len(m.overlay)
		if ovOK {
			ovEntry = m.overlay[m.oi]
		}

		switch {
		case !dbOK && !ovOK:
			m.done = true
			return false
		case !dbOK:
			m.oi++
			if ovEntry.Value == nil {
				continue // tombstone with nothing underneath to suppress
			}
			m.entry = ovEntry
			return true
		case !ovOK:
			m.ddb.advance()
			m.entry = dbEntry
			return true
		default:
			switch c := bytes.Compare(ovEntry.Key, dbEntry.Key); {
			case c < 0:
				m.oi++
				if ovEntry.Value == nil {
					continue
				}
				m.entry = ovEntry
				return true
			case c > 0:
				m.ddb.advance()
				m.entry = dbEntry
				return true
			default: // same key: overlay wins, whether a Put or a Delete tombstone
				m.oi++
				m.ddb.advance()
				if ovEntry.Value == nil {
					continue
				}
				m.entry = ovEntry
				return true
			}
		}
	}
}

func (m *mergeCursor) Entry() backend.Entry { return m.entry }
func (m *mergeCursor) Err() error           { return m.err }
func (m *mergeCursor) Close() error         { return nil }
