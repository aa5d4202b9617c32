package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names shared by services and tasks.
const (
	InquiriesCollection      = "inquiries"
	UsersCollection          = "users"
	KycCollection            = "vendorkycs"
	ServicesCollection       = "services"
	CategoriesCollection     = "vendorcategories"
	StaffCollection          = "staffs"
	SettingsCollection       = "settings"
	EmailTemplatesCollection = "email_templates"
)

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	fmt.Println("Successfully connected to MongoDB!")
	return client, client.Database(dbName), nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	fmt.Println("MongoDB connection closed.")
	return nil
}

// Indexes lists the secondary indexes each collection needs.
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		InquiriesCollection: {
			{Keys: bson.D{{Key: "search_query", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "priority", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "recipients.vendors.vendor_id", Value: 1}}},
			{Keys: bson.D{{Key: "recipients.individuals.individual_id", Value: 1}}},
		},
		ServicesCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "vendor_id", Value: 1}}},
		},
		KycCollection: {
			{Keys: bson.D{{Key: "vendor_id", Value: 1}, {Key: "user_role", Value: 1}}},
			{Keys: bson.D{{Key: "kyc_status", Value: 1}}},
		},
		StaffCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "individual_user_id", Value: 1}}},
		},
		SettingsCollection: {
			{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		EmailTemplatesCollection: {
			{Keys: bson.D{{Key: "template_id", Value: 1}, {Key: "locale", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
}

// EnsureIndexes creates every index from Indexes. It is idempotent.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	for coll, models := range Indexes() {
		names, err := database.Collection(coll).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
		log.Printf("Ensured %d indexes on %s", len(names), coll)
	}
	return nil
}
