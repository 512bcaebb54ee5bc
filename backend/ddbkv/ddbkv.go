// Package ddbkv implements backend.Backend against a single DynamoDB
// table, shared by every CF the same way badgerkv shares one badger.DB:
// each item's partition key is the CF name, its sort key the user key
// (DynamoDB Binary), so DynamoDB's own sort-key ordering gives Scan its
// required ascending key order for free via Query instead of a table
// Scan. A transaction buffers its writes and commits them in exactly
// one TransactWriteItems call, so the buffered writes land all together
// or not at all. The commit's items carry no condition expressions.
package ddbkv

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

const (
	attrPK    = "cf"
	attrSK    = "k"
	attrValue = "v"

	// lockPK is the partition key of the exclusive-lock marker items. It
	// starts with a NUL byte, so no CF whose name starts with a printable
	// character collides with it; Builder does not reject CF names that
	// start with NUL.
	lockPK = "\x00sakuhiki_lock"
)

// maxTransactItems is DynamoDB's TransactWriteItems hard cap; a
// transaction buffering more writes than this fails at Commit with
// *TooManyWritesError rather than silently splitting into several
// non-atomic calls.
const maxTransactItems = 100

// Options configures a ddbkv.Backend.
type Options struct {
	Client    *dynamodb.Client
	TableName string
}

// NewDefaultClient builds a dynamodb.Client from the ambient AWS
// configuration (environment variables, shared config/credentials
// files, EC2/ECS instance metadata), the same resolution chain the AWS
// SDK applies everywhere else. Callers who already hold a configured
// aws.Config, or need a non-default one (a custom endpoint for local
// testing, an assumed role), should build a *dynamodb.Client directly
// and set it on Options.Client instead of calling this.
func NewDefaultClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("ddbkv: load default aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// TooManyWritesError is returned by a transaction's commit when more
// than maxTransactItems writes were buffered.
type TooManyWritesError struct {
	Count int
}

func (e *TooManyWritesError) Error() string {
	return fmt.Sprintf("ddbkv: %d buffered writes exceeds DynamoDB's %d-item TransactWriteItems limit", e.Count, maxTransactItems)
}

type cfHandle struct{ name string }

func (h cfHandle) Name() string { return h.name }

// Backend is a DynamoDB-backed backend.Backend.
type Backend struct {
	client *dynamodb.Client
	table  string
}

// CfHandle does not check name against the CFs the backend was opened
// with: it never returns *backend.NoSuchCfError.
func (b *Backend) CfHandle(ctx context.Context, name string) (backend.Cf, error) {
	return cfHandle{name: name}, nil
}

func (b *Backend) Transaction(ctx context.Context, mode backend.Mode, cfs []backend.Cf, body backend.TxBody) error {
	txCfs := make([]backend.TxCf, len(cfs))
	for i, cf := range cfs {
		txCfs[i] = cf.(cfHandle)
	}
	txn := &transaction{backend: b, mode: mode, ctx: ctx, reads: make(map[string][]byte), writes: make(map[string]*writeOp)}

	if err := body(ctx, txn, txCfs); err != nil {
		txn.releaseLocks(ctx)
		return err
	}
	if err := txn.commit(ctx); err != nil {
		txn.releaseLocks(ctx)
		return err
	}
	txn.releaseLocks(ctx)
	return nil
}

func (b *Backend) Close() error { return nil }

type writeOp struct {
	cf      string
	key     []byte
	value   []byte
	deleted bool
}

// transaction buffers every Put/Delete in memory and issues one
// TransactWriteItems at commit; Get/Scan/ScanPrefix consult the buffer
// first so a transaction observes its own writes before they land.
type transaction struct {
	backend *Backend
	mode    backend.Mode
	ctx     context.Context

	reads  map[string][]byte // allocated but never filled: Get calls GetItem on every buffer miss
	writes map[string]*writeOp

	locks []string // cf names locked via TakeExclusiveLock, released at the end
}

func itemKey(cf string, key []byte) string { return cf + "\x00" + string(key) }

func (t *transaction) CurrentMode() backend.Mode { return t.mode }

func (t *transaction) requireWrite() error {
	if t.mode == backend.ReadOnly {
		return &backend.InvalidTransactionModeError{Expected: backend.ReadWrite, Actual: t.mode}
	}
	return nil
}

// TakeExclusiveLock conditionally puts a lock marker item for cf. A
// second TakeExclusiveLock on a cf that is already locked fails with an
// error instead of waiting; Put and Delete in other transactions do not
// check the marker and are not blocked by it.
func (t *transaction) TakeExclusiveLock(ctx context.Context, cf backend.TxCf) (backend.ExclusiveLock, error) {
	if t.mode != backend.IndexRebuilding {
		return nil, &backend.InvalidTransactionModeError{Expected: backend.IndexRebuilding, Actual: t.mode}
	}
	name := cf.(cfHandle).name
	_, err := t.backend.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.backend.table),
		Item:                lockItem(name),
		ConditionExpression: aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": attrPK,
		},
	})
	var cce *types.ConditionalCheckFailedException
	if errors.As(err, &cce) {
		return nil, backend.WrapCf(name, fmt.Errorf("cf %q is already locked for rebuild", name))
	}
	if err != nil {
		return nil, backend.WrapCf(name, err)
	}
	t.locks = append(t.locks, name)
	released := false
	return lockHandle{release: func() {
		if released {
			return
		}
		released = true
		t.releaseLock(context.Background(), name)
	}}, nil
}

type lockHandle struct{ release func() }

func (l lockHandle) Release() { l.release() }

func (t *transaction) releaseLock(ctx context.Context, name string) {
	t.backend.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(t.backend.table),
		Key:       lockKey(name),
	})
}

func (t *transaction) releaseLocks(ctx context.Context) {
	for _, name := range t.locks {
		t.releaseLock(ctx, name)
	}
	t.locks = nil
}

func lockKey(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: lockPK},
		attrSK: &types.AttributeValueMemberB{Value: []byte(name)},
	}
}

func lockItem(name string) map[string]types.AttributeValue {
	item := lockKey(name)
	item[attrValue] = &types.AttributeValueMemberB{Value: []byte{}}
	return item
}

func (t *transaction) Get(ctx context.Context, cf backend.TxCf, key []byte) ([]byte, bool, error) {
	name := cf.Name()
	ik := itemKey(name, key)
	if w, ok := t.writes[ik]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return w.value, true, nil
	}
	out, err := t.backend.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.backend.table),
		Key: map[string]types.AttributeValue{
			attrPK: &types.AttributeValueMemberS{Value: name},
			attrSK: &types.AttributeValueMemberB{Value: key},
		},
	})
	if err != nil {
		return nil, false, backend.WrapCf(name, err)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	val, ok := out.Item[attrValue].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false, backend.WrapCf(name, fmt.Errorf("item %x missing binary value attribute", key))
	}
	return val.Value, true, nil
}

func (t *transaction) Put(ctx context.Context, cf backend.TxCf, key, value []byte) ([]byte, bool, error) {
	if err := t.requireWrite(); err != nil {
		return nil, false, err
	}
	prev, hadPrev, err := t.Get(ctx, cf, key)
	if err != nil {
		return nil, false, err
	}
	t.writes[itemKey(cf.Name(), key)] = &writeOp{cf: cf.Name(), key: append([]byte{}, key...), value: append([]byte{}, value...)}
	return prev, hadPrev, nil
}

func (t *transaction) Delete(ctx context.Context, cf backend.TxCf, key []byte) ([]byte, bool, error) {
	if err := t.requireWrite(); err != nil {
		return nil, false, err
	}
	prev, hadPrev, err := t.Get(ctx, cf, key)
	if err != nil {
		return nil, false, err
	}
	if !hadPrev {
		return nil, false, nil
	}
	t.writes[itemKey(cf.Name(), key)] = &writeOp{cf: cf.Name(), key: append([]byte{}, key...), deleted: true}
	return prev, true, nil
}

func (t *transaction) Clear(ctx context.Context, cf backend.TxCf) error {
	if t.mode != backend.IndexRebuilding {
		return &backend.InvalidTransactionModeError{Expected: backend.IndexRebuilding, Actual: t.mode}
	}
	cur, err := t.Scan(ctx, cf, backend.KeyRange{})
	if err != nil {
		return err
	}
	defer cur.Close()
	for cur.Next(ctx) {
		if _, _, err := t.Delete(ctx, cf, cur.Entry().Key); err != nil {
			return err
		}
	}
	return cur.Err()
}

func (t *transaction) commit(ctx context.Context) error {
	if len(t.writes) == 0 {
		return nil
	}
	if len(t.writes) > maxTransactItems {
		return &TooManyWritesError{Count: len(t.writes)}
	}

	keys := make([]string, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic item order, easier to reason about/test

	items := make([]types.TransactWriteItem, 0, len(t.writes))
	for _, ik := range keys {
		w := t.writes[ik]
		key := map[string]types.AttributeValue{
			attrPK: &types.AttributeValueMemberS{Value: w.cf},
			attrSK: &types.AttributeValueMemberB{Value: w.key},
		}
		if w.deleted {
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{TableName: aws.String(t.backend.table), Key: key},
			})
			continue
		}
		item := key
		item[attrValue] = &types.AttributeValueMemberB{Value: w.value}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(t.backend.table), Item: item},
		})
	}

	_, err := t.backend.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return fmt.Errorf("ddbkv: commit: %w", err)
	}
	return nil
}
