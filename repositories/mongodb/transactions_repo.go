package mongodb

import (
	// Go Internal Packages
	"context"
	"errors"
	"fmt"

	// Local Packages
	errs "anchor-observer/errors"
	models "anchor-observer/models"

	// External Packages
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrAmbiguousPayment is returned when more than one transaction waits on the same
// (account, memo, status) key.
var ErrAmbiguousPayment = errors.New("more than one transaction matches the payment")

// TxRepository stores the transactions of one protocol flavor in its own collection.
type TxRepository struct {
	client     *mongo.Client
	database   string
	collection string
	protocol   models.Protocol
}

func NewTxRepository(client *mongo.Client, database string, protocol models.Protocol) *TxRepository {
	return &TxRepository{
		client:     client,
		database:   database,
		collection: fmt.Sprintf("sep%s_transactions", protocol),
		protocol:   protocol,
	}
}

func (r *TxRepository) Protocol() models.Protocol {
	return r.protocol
}

func (r *TxRepository) coll() *mongo.Collection {
	return r.client.Database(r.database).Collection(r.collection)
}

// FindByID returns nil without error when no transaction has the id.
func (r *TxRepository) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&tx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s in %s: %w", id, r.collection, err)
	}
	return &tx, nil
}

// FindByPayment returns the single transaction waiting for a payment to toAccount with
// memo while in one of statuses.
func (r *TxRepository) FindByPayment(ctx context.Context, toAccount, memo string, statuses []models.Status) (*models.Transaction, error) {
	filter := bson.M{
		"to_account": toAccount,
		"memo":       memo,
		"status":     bson.M{"$in": statuses},
	}
	cursor, err := r.coll().Find(ctx, filter, options.Find().SetLimit(2))
	if err != nil {
		return nil, fmt.Errorf("find payment match in %s: %w", r.collection, err)
	}
	defer cursor.Close(ctx)

	var txs []models.Transaction
	if err := cursor.All(ctx, &txs); err != nil {
		return nil, fmt.Errorf("decode payment match in %s: %w", r.collection, err)
	}
	switch len(txs) {
	case 0:
		return nil, nil
	case 1:
		return &txs[0], nil
	default:
		return nil, ErrAmbiguousPayment
	}
}

// Save inserts a new transaction or replaces the stored one if its version still
// matches. A lost race returns a Conflict error and leaves tx.Version untouched.
func (r *TxRepository) Save(ctx context.Context, tx *models.Transaction) error {
	if tx.Version == 0 {
		tx.Version = 1
		_, err := r.coll().InsertOne(ctx, tx)
		if err != nil {
			tx.Version = 0
			if mongo.IsDuplicateKeyError(err) {
				return errs.ConflictErr(r.collection, tx.ID)
			}
			return fmt.Errorf("insert %s into %s: %w", tx.ID, r.collection, err)
		}
		return nil
	}

	prev := tx.Version
	tx.Version = prev + 1
	res, err := r.coll().ReplaceOne(ctx, bson.M{"_id": tx.ID, "version": prev}, tx)
	if err != nil {
		tx.Version = prev
		return fmt.Errorf("replace %s in %s: %w", tx.ID, r.collection, err)
	}
	if res.MatchedCount == 0 {
		tx.Version = prev
		return errs.ConflictErr(r.collection, tx.ID)
	}
	return nil
}

// EnsureIndexes creates the payment lookup index.
func (r *TxRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "to_account", Value: 1}, {Key: "memo", Value: 1}, {Key: "status", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create payment index on %s: %w", r.collection, err)
	}
	return nil
}
