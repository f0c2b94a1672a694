package record

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/ledger"
)

const (
	pkContacts     = "CONTACTS"
	pkTransactions = "TRANSACTIONS"
	skNamePrefix   = "NAME#"
	skTxPrefix     = "TX#"
)

// dynamodbAPI is the minimal DynamoDB interface used by DynamoStore.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps records in a single DynamoDB table keyed by PK/SK.
// Contacts live under one partition with the lowercased name as sort key,
// transactions under another sorted by timestamp.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
}

// NewDynamoStore wraps api and table.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, stdErrors.New("record: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, stdErrors.New("record: dynamodb table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName}, nil
}

// Contacts implements Store.
func (d *DynamoStore) Contacts(ctx context.Context) ([]Contact, error) {
	items, err := d.queryAll(ctx, pkContacts, true, 0)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "list contacts")
	}
	contacts := make([]Contact, 0, len(items))
	for _, item := range items {
		contact, err := itemToContact(item)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode contact")
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

// AddContact implements Store.
func (d *DynamoStore) AddContact(ctx context.Context, contact Contact) (Contact, error) {
	contact, err := validateContact(contact)
	if err != nil {
		return Contact{}, err
	}
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now().UTC()
	}
	_, err = d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                contactItem(contact),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var conditional *types.ConditionalCheckFailedException
		if stdErrors.As(err, &conditional) {
			return Contact{}, ErrContactExists
		}
		return Contact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "put contact")
	}
	return contact, nil
}

// DeleteContact implements Store.
func (d *DynamoStore) DeleteContact(ctx context.Context, id string) error {
	contacts, err := d.Contacts(ctx)
	if err != nil {
		return err
	}
	for _, contact := range contacts {
		if contact.ID != id {
			continue
		}
		_, err := d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(d.tableName),
			Key:       contactKey(contact.Name),
		})
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "delete contact")
		}
		return nil
	}
	return ErrContactNotFound
}

// FindContact implements Store.
func (d *DynamoStore) FindContact(ctx context.Context, name string) (Contact, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            contactKey(name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Contact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "get contact")
	}
	if out == nil || len(out.Item) == 0 {
		return Contact{}, ErrContactNotFound
	}
	contact, err := itemToContact(out.Item)
	if err != nil {
		return Contact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode contact")
	}
	return contact, nil
}

// Transactions implements Store.
func (d *DynamoStore) Transactions(ctx context.Context, limit int) ([]Transaction, error) {
	items, err := d.queryAll(ctx, pkTransactions, false, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "list transactions")
	}
	txs := make([]Transaction, 0, len(items))
	for _, item := range items {
		tx, err := itemToTransaction(item)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode transaction")
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// AddTransaction implements Store.
func (d *DynamoStore) AddTransaction(ctx context.Context, tx Transaction) error {
	if err := validateTransaction(tx); err != nil {
		return err
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}
	_, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      transactionItem(tx),
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "put transaction")
	}
	return nil
}

// TrimTransactions implements Store.
func (d *DynamoStore) TrimTransactions(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	items, err := d.queryAll(ctx, pkTransactions, false, 0)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "list transactions for trim")
	}
	if len(items) <= keep {
		return nil
	}
	for _, item := range items[keep:] {
		_, err := d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(d.tableName),
			Key: map[string]types.AttributeValue{
				"PK": item["PK"],
				"SK": item["SK"],
			},
		})
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "delete transaction")
		}
	}
	return nil
}

// Close is a no-op; the SDK client has no connection to release.
func (d *DynamoStore) Close() error { return nil }

func (d *DynamoStore) queryAll(ctx context.Context, pk string, forward bool, limit int) ([]map[string]types.AttributeValue, error) {
	var (
		items []map[string]types.AttributeValue
		start map[string]types.AttributeValue
	)
	for {
		in := &dynamodb.QueryInput{
			TableName:              aws.String(d.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: pk},
			},
			ScanIndexForward:  aws.Bool(forward),
			ExclusiveStartKey: start,
			ConsistentRead:    aws.Bool(true),
		}
		if limit > 0 {
			in.Limit = aws.Int32(int32(limit - len(items)))
		}
		out, err := d.api.Query(ctx, in)
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 || (limit > 0 && len(items) >= limit) {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}

func contactKey(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pkContacts},
		"SK": &types.AttributeValueMemberS{Value: skNamePrefix + NameKey(name)},
	}
}

func contactItem(contact Contact) map[string]types.AttributeValue {
	item := contactKey(contact.Name)
	item["id"] = &types.AttributeValueMemberS{Value: contact.ID}
	item["name"] = &types.AttributeValueMemberS{Value: contact.Name}
	item["address"] = &types.AttributeValueMemberS{Value: contact.Address}
	item["createdAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(contact.CreatedAt.UnixMilli(), 10)}
	return item
}

func transactionItem(tx Transaction) map[string]types.AttributeValue {
	sk := skTxPrefix + tx.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z") + "#" + tx.Signature
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: pkTransactions},
		"SK":        &types.AttributeValueMemberS{Value: sk},
		"signature": &types.AttributeValueMemberS{Value: tx.Signature},
		"kind":      &types.AttributeValueMemberS{Value: string(tx.Kind)},
		"amount":    &types.AttributeValueMemberS{Value: tx.Amount.String()},
		"recipient": &types.AttributeValueMemberS{Value: tx.Recipient},
		"timestamp": &types.AttributeValueMemberN{Value: strconv.FormatInt(tx.Timestamp.UnixMilli(), 10)},
	}
}

func itemToContact(item map[string]types.AttributeValue) (Contact, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return Contact{}, err
	}
	name, err := strAttr(item, "name")
	if err != nil {
		return Contact{}, err
	}
	address, err := strAttr(item, "address")
	if err != nil {
		return Contact{}, err
	}
	created, _ := intAttr(item, "createdAt")
	return Contact{ID: id, Name: name, Address: address, CreatedAt: time.UnixMilli(created).UTC()}, nil
}

func itemToTransaction(item map[string]types.AttributeValue) (Transaction, error) {
	signature, err := strAttr(item, "signature")
	if err != nil {
		return Transaction{}, err
	}
	kind, err := strAttr(item, "kind")
	if err != nil {
		return Transaction{}, err
	}
	rawAmount, err := strAttr(item, "amount")
	if err != nil {
		return Transaction{}, err
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse amount: %w", err)
	}
	recipient, _ := strAttr(item, "recipient")
	ts, _ := intAttr(item, "timestamp")
	return Transaction{
		Signature: signature,
		Kind:      ledger.Kind(kind),
		Amount:    amount,
		Recipient: recipient,
		Timestamp: time.UnixMilli(ts).UTC(),
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

var _ Store = (*DynamoStore)(nil)
