package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jogardn/coastal-farmer/pkg/models"
)

type productDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Name          string             `bson:"name"`
	Description   string             `bson:"description"`
	Price         float64            `bson:"price"`
	Category      string             `bson:"category"`
	Stock         int                `bson:"stock"`
	Unit          string             `bson:"unit"`
	Image         string             `bson:"image"`
	Discount      float64            `bson:"discount"`
	OriginalPrice float64            `bson:"originalPrice"`
	IsPublic      bool               `bson:"isPublic"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

func (d productDoc) model() models.Product {
	return models.Product{
		ID:            d.ID.Hex(),
		Name:          d.Name,
		Description:   d.Description,
		Price:         d.Price,
		Category:      d.Category,
		Stock:         d.Stock,
		Unit:          d.Unit,
		Image:         d.Image,
		Discount:      d.Discount,
		OriginalPrice: d.OriginalPrice,
		IsPublic:      d.IsPublic,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type orderItemDoc struct {
	ProductID   string  `bson:"productId"`
	ProductName string  `bson:"productName"`
	UnitPrice   float64 `bson:"unitPrice"`
	Quantity    int     `bson:"quantity"`
}

type orderDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	OrderType       string             `bson:"orderType"`
	CustomerName    string             `bson:"customerName"`
	CustomerPhone   string             `bson:"customerPhone"`
	CustomerAddress string             `bson:"customerAddress"`
	OrderDate       time.Time          `bson:"orderDate"`
	Items           []orderItemDoc     `bson:"items"`
	TotalAmount     float64            `bson:"totalAmount"`
	Status          string             `bson:"status"`
	Notes           string             `bson:"notes"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

func toItemDocs(items []models.OrderItem) []orderItemDoc {
	docs := make([]orderItemDoc, 0, len(items))
	for _, it := range items {
		docs = append(docs, orderItemDoc(it))
	}
	return docs
}

func (d orderDoc) model() models.Order {
	items := make([]models.OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, models.OrderItem(it))
	}
	return models.Order{
		ID:              d.ID.Hex(),
		OrderType:       models.OrderType(d.OrderType),
		CustomerName:    d.CustomerName,
		CustomerPhone:   d.CustomerPhone,
		CustomerAddress: d.CustomerAddress,
		OrderDate:       d.OrderDate,
		Items:           items,
		TotalAmount:     d.TotalAmount,
		Status:          models.OrderStatus(d.Status),
		Notes:           d.Notes,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type adminDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	EmailKey     string             `bson:"emailKey"`
	PasswordHash string             `bson:"passwordHash"`
	Role         string             `bson:"role"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

type MongoStore struct {
	client   *mongo.Client
	products *mongo.Collection
	orders   *mongo.Collection
	admins   *mongo.Collection
	logger   *logrus.Logger
	now      func() time.Time
}

func OpenMongo(ctx context.Context, uri, database string, logger *logrus.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo not reachable: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		products: db.Collection("products"),
		orders:   db.Collection("orders"),
		admins:   db.Collection("admins"),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}

	_, err = s.admins.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "emailKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create admin email index: %w", err)
	}

	logger.WithField("database", database).Info("Mongo connection established")
	return s, nil
}

// objectID parses id. An unparseable id cannot name a record, so it is
// reported as not found.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}

func mongoNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func (s *MongoStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	cur, err := s.products.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(docs))
	for _, d := range docs {
		products = append(products, d.model())
	}
	return products, nil
}

func (s *MongoStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc productDoc
	if err := s.products.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mongoNotFound(err)
	}
	p := doc.model()
	return &p, nil
}

func (s *MongoStore) CreateProduct(ctx context.Context, p *models.Product) error {
	doc := productDoc{
		ID:            primitive.NewObjectID(),
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		Category:      p.Category,
		Stock:         p.Stock,
		Unit:          p.Unit,
		Image:         p.Image,
		Discount:      p.Discount,
		OriginalPrice: p.OriginalPrice,
		IsPublic:      p.IsPublic,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if _, err := s.products.InsertOne(ctx, doc); err != nil {
		return err
	}
	p.ID = doc.ID.Hex()
	return nil
}

func (s *MongoStore) UpdateProduct(ctx context.Context, id string, patch models.ProductInput) (*models.Product, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc productDoc
	err = s.products.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": productSet(patch, s.now())},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, mongoNotFound(err)
	}
	p := doc.model()
	return &p, nil
}

func (s *MongoStore) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteByID(ctx, s.products, id)
}

func (s *MongoStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	cur, err := s.orders.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "orderDate", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(docs))
	for _, d := range docs {
		orders = append(orders, d.model())
	}
	return orders, nil
}

func (s *MongoStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc orderDoc
	if err := s.orders.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mongoNotFound(err)
	}
	o := doc.model()
	return &o, nil
}

func (s *MongoStore) CreateOrder(ctx context.Context, o *models.Order) error {
	doc := orderDoc{
		ID:              primitive.NewObjectID(),
		OrderType:       string(o.OrderType),
		CustomerName:    o.CustomerName,
		CustomerPhone:   o.CustomerPhone,
		CustomerAddress: o.CustomerAddress,
		OrderDate:       o.OrderDate,
		Items:           toItemDocs(o.Items),
		TotalAmount:     o.TotalAmount,
		Status:          string(o.Status),
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if _, err := s.orders.InsertOne(ctx, doc); err != nil {
		return err
	}
	o.ID = doc.ID.Hex()
	return nil
}

func (s *MongoStore) UpdateOrder(ctx context.Context, id string, patch models.OrderInput) (*models.Order, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc orderDoc
	err = s.orders.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": orderSet(patch, s.now())},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, mongoNotFound(err)
	}
	o := doc.model()
	return &o, nil
}

func (s *MongoStore) DeleteOrder(ctx context.Context, id string) error {
	return s.deleteByID(ctx, s.orders, id)
}

func (s *MongoStore) FindAdminByEmail(ctx context.Context, email string) (*models.Administrator, error) {
	var doc adminDoc
	err := s.admins.FindOne(ctx, bson.M{"emailKey": strings.ToLower(email)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.Administrator{
		ID:           doc.ID.Hex(),
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Role:         models.Role(doc.Role),
		CreatedAt:    doc.CreatedAt,
	}, nil
}

func (s *MongoStore) CreateAdmin(ctx context.Context, admin *models.Administrator) error {
	doc := adminDoc{
		ID:           primitive.NewObjectID(),
		Name:         admin.Name,
		Email:        admin.Email,
		EmailKey:     strings.ToLower(admin.Email),
		PasswordHash: admin.PasswordHash,
		Role:         string(admin.Role),
		CreatedAt:    admin.CreatedAt,
	}
	if _, err := s.admins.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	admin.ID = doc.ID.Hex()
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) deleteByID(ctx context.Context, coll *mongo.Collection, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// productSet builds the $set document for the fields the patch carries.
func productSet(patch models.ProductInput, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	putIf(set, "name", patch.Name)
	putIf(set, "description", patch.Description)
	putIf(set, "price", patch.Price)
	putIf(set, "category", patch.Category)
	putIf(set, "stock", patch.Stock)
	putIf(set, "unit", patch.Unit)
	putIf(set, "image", patch.Image)
	putIf(set, "discount", patch.Discount)
	putIf(set, "originalPrice", patch.OriginalPrice)
	putIf(set, "isPublic", patch.IsPublic)
	return set
}

func orderSet(patch models.OrderInput, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if patch.OrderType != nil {
		set["orderType"] = string(*patch.OrderType)
	}
	putIf(set, "customerName", patch.CustomerName)
	putIf(set, "customerPhone", patch.CustomerPhone)
	putIf(set, "customerAddress", patch.CustomerAddress)
	putIf(set, "orderDate", patch.OrderDate)
	if patch.Items != nil {
		set["items"] = toItemDocs(*patch.Items)
	}
	putIf(set, "totalAmount", patch.TotalAmount)
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	putIf(set, "notes", patch.Notes)
	return set
}

func putIf[T any](set bson.M, key string, v *T) {
	if v != nil {
		set[key] = *v
	}
}
