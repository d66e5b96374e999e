package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/viego-wallet/viego-backend/internal/models"
)

const (
	usersCollection     = "users"
	cardsCollection     = "card_links"
	paymentsCollection  = "automated_payments"
	remindersCollection = "reminders"
)

// EnsureIndexes configures the indexes every Mongo repository relies on.
// Called on startup after Mongo has connected.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("idx_email_unique").SetUnique(true),
			},
		},
		cardsCollection: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "pan_hash", Value: 1}},
				Options: options.Index().SetName("idx_user_pan_unique").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "document_id", Value: 1}},
				Options: options.Index().SetName("idx_document"),
			},
		},
		paymentsCollection: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "next_due_date", Value: 1}},
				Options: options.Index().SetName("idx_user_due"),
			},
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "next_due_date", Value: 1}},
				Options: options.Index().SetName("idx_status_due"),
			},
			{
				Keys:    bson.D{{Key: "vctc_document_id", Value: 1}, {Key: "control_type", Value: 1}},
				Options: options.Index().SetName("idx_document_control"),
			},
		},
		remindersCollection: {
			{
				Keys:    bson.D{{Key: "sent", Value: 1}, {Key: "scheduled_at", Value: 1}},
				Options: options.Index().SetName("idx_sent_scheduled"),
			},
			{
				Keys:    bson.D{{Key: "payment_id", Value: 1}},
				Options: options.Index().SetName("idx_payment"),
			},
		},
	}

	for name, specs := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("indexes for %s: %w", name, err)
		}
	}
	return nil
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}

func mongoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	}
	return err
}

// --- profiles ---

// MongoProfiles stores UserProfile documents.
type MongoProfiles struct {
	col *mongo.Collection
}

func NewMongoProfiles(db *mongo.Database) *MongoProfiles {
	return &MongoProfiles{col: db.Collection(usersCollection)}
}

func (r *MongoProfiles) Create(ctx context.Context, p *models.UserProfile) error {
	now := time.Now().UTC()
	p.ID = primitive.NewObjectID()
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.CreatedAt, p.UpdatedAt = now, now
	if p.AlertPreferences == nil {
		p.AlertPreferences = []models.AlertPreference{}
	}
	_, err := r.col.InsertOne(ctx, p)
	return mongoErr(err)
}

func (r *MongoProfiles) Get(ctx context.Context, id string) (*models.UserProfile, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var p models.UserProfile
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&p); err != nil {
		return nil, mongoErr(err)
	}
	return &p, nil
}

func (r *MongoProfiles) GetByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	var p models.UserProfile
	err := r.col.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(&p)
	if err != nil {
		return nil, mongoErr(err)
	}
	return &p, nil
}

func (r *MongoProfiles) UpdateSettings(ctx context.Context, id string, u ProfileUpdate) (*models.UserProfile, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updated_at": time.Now().UTC()}
	if u.FirstName != nil {
		set["first_name"] = *u.FirstName
	}
	if u.LastName != nil {
		set["last_name"] = *u.LastName
	}
	if u.Notifications != nil {
		set["notifications"] = *u.Notifications
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var p models.UserProfile
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&p); err != nil {
		return nil, mongoErr(err)
	}
	return &p, nil
}

func (r *MongoProfiles) SetStatus(ctx context.Context, id string, status models.AccountStatus) error {
	return r.updateOne(ctx, id, bson.M{"status": status})
}

func (r *MongoProfiles) SetAlertPreferences(ctx context.Context, id string, prefs []models.AlertPreference) error {
	if prefs == nil {
		prefs = []models.AlertPreference{}
	}
	return r.updateOne(ctx, id, bson.M{"alert_preferences": prefs})
}

func (r *MongoProfiles) SetVendorUserID(ctx context.Context, id, vendorUserID string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	filter := bson.M{
		"_id": oid,
		"$or": bson.A{
			bson.M{"vendor_user_id": bson.M{"$exists": false}},
			bson.M{"vendor_user_id": ""},
			bson.M{"vendor_user_id": vendorUserID},
		},
	}
	update := bson.M{"$set": bson.M{"vendor_user_id": vendorUserID, "updated_at": time.Now().UTC()}}
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return mongoErr(err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrVendorIDImmutable
}

func (r *MongoProfiles) updateOne(ctx context.Context, id string, set bson.M) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	set["updated_at"] = time.Now().UTC()
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return mongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// --- cards ---

// MongoCards stores CardLink documents.
type MongoCards struct {
	col *mongo.Collection
}

func NewMongoCards(db *mongo.Database) *MongoCards {
	return &MongoCards{col: db.Collection(cardsCollection)}
}

func (r *MongoCards) Create(ctx context.Context, c *models.CardLink) error {
	now := time.Now().UTC()
	c.ID = primitive.NewObjectID()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.ConfiguredCategories == nil {
		c.ConfiguredCategories = []string{}
	}
	_, err := r.col.InsertOne(ctx, c)
	return mongoErr(err)
}

func (r *MongoCards) Get(ctx context.Context, id string) (*models.CardLink, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *MongoCards) GetByPANHash(ctx context.Context, userID, panHash string) (*models.CardLink, error) {
	return r.findOne(ctx, bson.M{"user_id": userID, "pan_hash": panHash})
}

func (r *MongoCards) findOne(ctx context.Context, filter bson.M) (*models.CardLink, error) {
	var c models.CardLink
	if err := r.col.FindOne(ctx, filter).Decode(&c); err != nil {
		return nil, mongoErr(err)
	}
	return &c, nil
}

func (r *MongoCards) ListByUser(ctx context.Context, userID string) ([]models.CardLink, error) {
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	cards := []models.CardLink{}
	if err := cur.All(ctx, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (r *MongoCards) SetDocument(ctx context.Context, id, documentID string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"document_id": documentID,
		"updated_at":  time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoCards) SetCategories(ctx context.Context, id string, categories []string, replace bool) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	var update bson.M
	if replace {
		if categories == nil {
			categories = []string{}
		}
		update = bson.M{"$set": bson.M{"configured_categories": categories, "updated_at": time.Now().UTC()}}
	} else {
		update = bson.M{
			"$addToSet": bson.M{"configured_categories": bson.M{"$each": categories}},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		}
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoCards) ClearDocument(ctx context.Context, documentID string) error {
	_, err := r.col.UpdateMany(ctx, bson.M{"document_id": documentID}, bson.M{
		"$unset": bson.M{"document_id": ""},
		"$set":   bson.M{"configured_categories": []string{}, "updated_at": time.Now().UTC()},
	})
	return err
}

// --- payments ---

// MongoPayments stores AutomatedPayment documents.
type MongoPayments struct {
	col *mongo.Collection
}

func NewMongoPayments(db *mongo.Database) *MongoPayments {
	return &MongoPayments{col: db.Collection(paymentsCollection)}
}

func (r *MongoPayments) Create(ctx context.Context, p *models.AutomatedPayment) error {
	now := time.Now().UTC()
	p.ID = primitive.NewObjectID()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := r.col.InsertOne(ctx, p)
	return mongoErr(err)
}

func (r *MongoPayments) Get(ctx context.Context, id string) (*models.AutomatedPayment, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var p models.AutomatedPayment
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&p); err != nil {
		return nil, mongoErr(err)
	}
	return &p, nil
}

func (r *MongoPayments) ListByUser(ctx context.Context, userID string) ([]models.AutomatedPayment, error) {
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "next_due_date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	payments := []models.AutomatedPayment{}
	if err := cur.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// Update replaces the stored payment. Last writer wins.
func (r *MongoPayments) Update(ctx context.Context, p *models.AutomatedPayment) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return mongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoPayments) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoPayments) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"status": models.PaymentPending, "next_due_date": bson.M{"$lt": now.UTC()}},
		bson.M{"$set": bson.M{"status": models.PaymentOverdue, "updated_at": now.UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MongoPayments) ReopenPaid(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"status": models.PaymentPaid, "paid_through": bson.M{"$lte": now.UTC()}},
		bson.M{"$set": bson.M{"status": models.PaymentPending, "updated_at": now.UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MongoPayments) ListMonitoring(ctx context.Context, documentID, controlType string) ([]models.AutomatedPayment, error) {
	cur, err := r.col.Find(ctx,
		bson.M{"vctc_document_id": documentID, "control_type": controlType},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	payments := []models.AutomatedPayment{}
	if err := cur.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *MongoPayments) ClearDocument(ctx context.Context, documentID string) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"vctc_document_id": documentID},
		bson.M{
			"$unset": bson.M{"vctc_document_id": "", "control_type": ""},
			"$set":   bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// --- reminders ---

// MongoReminders stores Reminder documents.
type MongoReminders struct {
	col *mongo.Collection
}

func NewMongoReminders(db *mongo.Database) *MongoReminders {
	return &MongoReminders{col: db.Collection(remindersCollection)}
}

func (r *MongoReminders) CreateMany(ctx context.Context, reminders []models.Reminder) error {
	if len(reminders) == 0 {
		return nil
	}
	now := time.Now().UTC()
	docs := make([]interface{}, len(reminders))
	for i := range reminders {
		reminders[i].ID = primitive.NewObjectID()
		reminders[i].CreatedAt = now
		docs[i] = reminders[i]
	}
	_, err := r.col.InsertMany(ctx, docs)
	return err
}

func (r *MongoReminders) ListByPayment(ctx context.Context, paymentID string) ([]models.Reminder, error) {
	cur, err := r.col.Find(ctx, bson.M{"payment_id": paymentID}, options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	reminders := []models.Reminder{}
	if err := cur.All(ctx, &reminders); err != nil {
		return nil, err
	}
	return reminders, nil
}

func (r *MongoReminders) DeleteByPayment(ctx context.Context, paymentID string) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"payment_id": paymentID})
	return err
}

func (r *MongoReminders) DeleteUnsentByPayment(ctx context.Context, paymentID string) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"payment_id": paymentID, "sent": false})
	return err
}

func (r *MongoReminders) Due(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "scheduled_at", Value: 1}}).
		SetLimit(int64(limit))
	cur, err := r.col.Find(ctx, bson.M{"sent": false, "scheduled_at": bson.M{"$lte": now.UTC()}}, opts)
	if err != nil {
		return nil, err
	}
	reminders := []models.Reminder{}
	if err := cur.All(ctx, &reminders); err != nil {
		return nil, err
	}
	return reminders, nil
}

func (r *MongoReminders) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	oid, err := objectID(id)
	if err != nil {
		return false, err
	}
	sentAt := at.UTC()
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": oid, "sent": false},
		bson.M{"$set": bson.M{"sent": true, "sent_at": sentAt}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoReminders) Release(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	_, err = r.col.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"sent": false}, "$unset": bson.M{"sent_at": ""}},
	)
	return err
}
