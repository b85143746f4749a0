// Command seed loads the demo catalog into Postgres so the SQL-backed data
// sources have something to serve.
package main

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/shopdesk/shopdesk-backend/internal/config"
	"github.com/shopdesk/shopdesk-backend/internal/dataadapter"
	"github.com/shopdesk/shopdesk-backend/internal/database"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database); err != nil {
		logger.WithError(err).Fatal("failed to run migrations")
	}

	for _, row := range dataadapter.DemoProducts() {
		_, err := db.Exec(`
			INSERT INTO products (product_id, name, category, price, availability, stock_count, rating, description, features)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (product_id) DO NOTHING
		`, row["product_id"], row["name"], row["category"], row["price"],
			row["availability"], row["stock_count"], row["rating"],
			row["description"], row["features"])
		if err != nil {
			logger.WithError(err).Fatal("failed to seed products")
		}
	}

	for _, row := range dataadapter.DemoOrders() {
		items, err := json.Marshal(row["items"])
		if err != nil {
			logger.WithError(err).Fatal("failed to encode order items")
		}
		_, err = db.Exec(`
			INSERT INTO orders (order_id, customer_id, status, total, order_date, shipping_address, tracking_number, can_cancel, items)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (order_id) DO NOTHING
		`, row["order_id"], row["customer_id"], row["status"], row["total"],
			row["order_date"], row["shipping_address"], row["tracking_number"],
			row["can_cancel"], string(items))
		if err != nil {
			logger.WithError(err).Fatal("failed to seed orders")
		}
	}

	for _, row := range dataadapter.DemoCustomers() {
		_, err := db.Exec(`
			INSERT INTO customers (customer_id, name, email, phone, address, loyalty_points, tier, order_history)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (customer_id) DO NOTHING
		`, row["customer_id"], row["name"], row["email"], row["phone"],
			row["address"], row["loyalty_points"], row["tier"], row["order_history"])
		if err != nil {
			logger.WithError(err).Fatal("failed to seed customers")
		}
	}

	logger.Info("demo catalog seeded")
}
