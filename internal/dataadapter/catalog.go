package dataadapter

// Demo catalog used when no database is configured. The seed utility loads
// the same rows into Postgres.

// DemoOrders returns the sample order table.
func DemoOrders() []Row {
	return []Row{
		{
			"order_id": "ORD001", "customer_id": "CUST001", "status": "shipped",
			"items":            []Row{{"product_id": "PROD001", "name": "Wireless Headphones", "quantity": 1, "price": 99.99}},
			"total":            99.99,
			"order_date":       "2024-01-15",
			"shipping_address": "123 Main St, New York, NY",
			"tracking_number":  "TRK123456789",
			"can_cancel":       false,
		},
		{
			"order_id": "ORD002", "customer_id": "CUST001", "status": "processing",
			"items": []Row{
				{"product_id": "PROD002", "name": "Smart Watch", "quantity": 1, "price": 249.99},
				{"product_id": "PROD003", "name": "Phone Case", "quantity": 2, "price": 19.99},
			},
			"total":            289.97,
			"order_date":       "2024-01-20",
			"shipping_address": "123 Main St, New York, NY",
			"can_cancel":       true,
		},
		{
			"order_id": "ORD003", "customer_id": "CUST002", "status": "delivered",
			"items":            []Row{{"product_id": "PROD004", "name": "Laptop Stand", "quantity": 1, "price": 45.99}},
			"total":            45.99,
			"order_date":       "2024-01-10",
			"shipping_address": "456 Oak Ave, Los Angeles, CA",
			"tracking_number":  "TRK987654321",
			"can_cancel":       false,
		},
		{
			"order_id": "ORD004", "customer_id": "CUST003", "status": "processing",
			"items":            []Row{{"product_id": "PROD005", "name": "Winter Jacket", "quantity": 1, "price": 89.99}},
			"total":            89.99,
			"order_date":       "2024-01-22",
			"shipping_address": "789 Pine Rd, Chicago, IL",
			"can_cancel":       true,
		},
		{
			"order_id": "ORD005", "customer_id": "CUST004", "status": "delivered",
			"items":            []Row{{"product_id": "PROD006", "name": "Gaming Mouse", "quantity": 1, "price": 59.99}},
			"total":            59.99,
			"order_date":       "2024-01-18",
			"shipping_address": "321 Elm St, Houston, TX",
			"tracking_number":  "TRK2468101214",
			"can_cancel":       false,
		},
		{
			"order_id": "ORD006", "customer_id": "CUST005", "status": "processing",
			"items":            []Row{{"product_id": "PROD007", "name": "Bluetooth Speaker", "quantity": 2, "price": 34.99}},
			"total":            69.98,
			"order_date":       "2024-01-21",
			"shipping_address": "654 Maple Ln, Miami, FL",
			"can_cancel":       true,
		},
	}
}

// DemoProducts returns the sample product table.
func DemoProducts() []Row {
	return []Row{
		{
			"product_id": "PROD001", "name": "Wireless Headphones", "category": "Electronics",
			"price": 99.99, "availability": "in_stock", "stock_count": 25, "rating": 4.5,
			"description": "High-quality wireless headphones with noise cancellation",
			"features":    "Bluetooth 5.0, 30-hour battery, Active noise cancellation",
		},
		{
			"product_id": "PROD002", "name": "Smart Watch", "category": "Electronics",
			"price": 249.99, "availability": "in_stock", "stock_count": 12, "rating": 4.3,
			"description": "Feature-rich smartwatch with health monitoring",
			"features":    "Heart rate monitor, GPS, Water resistant, 7-day battery",
		},
		{
			"product_id": "PROD003", "name": "Phone Case", "category": "Accessories",
			"price": 19.99, "availability": "in_stock", "stock_count": 100, "rating": 4.1,
			"description": "Durable protective phone case",
			"features":    "Drop protection, Wireless charging compatible, Clear design",
		},
		{
			"product_id": "PROD004", "name": "Laptop Stand", "category": "Office",
			"price": 45.99, "availability": "low_stock", "stock_count": 3, "rating": 4.7,
			"description": "Adjustable laptop stand for ergonomic working",
			"features":    "Adjustable height, Foldable, Heat dissipation",
		},
		{
			"product_id": "PROD005", "name": "Winter Jacket", "category": "Clothing",
			"price": 89.99, "availability": "in_stock", "stock_count": 15, "rating": 4.4,
			"description": "Warm and waterproof winter jacket",
			"features":    "Waterproof, Insulated, Multiple pockets, Wind resistant",
		},
		{
			"product_id": "PROD006", "name": "Gaming Mouse", "category": "Electronics",
			"price": 59.99, "availability": "in_stock", "stock_count": 40, "rating": 4.6,
			"description": "Ergonomic gaming mouse with customizable buttons",
			"features":    "RGB lighting, High precision sensor, Wireless and wired modes",
		},
		{
			"product_id": "PROD007", "name": "Bluetooth Speaker", "category": "Electronics",
			"price": 34.99, "availability": "in_stock", "stock_count": 50, "rating": 4.2,
			"description": "Portable Bluetooth speaker with rich bass",
			"features":    "Water resistant, 12-hour battery, Compact design",
		},
		{
			"product_id": "PROD008", "name": "Desk Lamp", "category": "Office",
			"price": 29.99, "availability": "in_stock", "stock_count": 20, "rating": 4.0,
			"description": "LED desk lamp with adjustable brightness",
			"features":    "Adjustable brightness, Touch control, Energy efficient",
		},
		{
			"product_id": "PROD009", "name": "Running Shoes", "category": "Clothing",
			"price": 75.99, "availability": "in_stock", "stock_count": 30, "rating": 4.3,
			"description": "Lightweight running shoes for everyday use",
			"features":    "Breathable material, Cushioned sole, Durable outsole",
		},
		{
			"product_id": "PROD010", "name": "Coffee Mug", "category": "Accessories",
			"price": 14.99, "availability": "in_stock", "stock_count": 60, "rating": 4.5,
			"description": "Ceramic coffee mug with a sleek design",
			"features":    "Microwave safe, Dishwasher safe, 350ml capacity",
		},
	}
}

// DemoCustomers returns the sample customer table.
func DemoCustomers() []Row {
	return []Row{
		{
			"customer_id": "CUST001", "name": "John Doe", "email": "john.doe@email.com",
			"phone": "+1-555-0123", "address": "123 Main St, New York, NY",
			"loyalty_points": 1250, "tier": "Gold",
			"order_history": "ORD001, ORD002",
		},
		{
			"customer_id": "CUST002", "name": "Jane Smith", "email": "jane.smith@email.com",
			"phone": "+1-555-0456", "address": "456 Oak Ave, Los Angeles, CA",
			"loyalty_points": 750, "tier": "Silver",
			"order_history": "ORD003",
		},
		{
			"customer_id": "CUST003", "name": "Bob Wilson", "email": "bob.wilson@email.com",
			"phone": "+1-555-0789", "address": "789 Pine Rd, Chicago, IL",
			"loyalty_points": 320, "tier": "Bronze",
			"order_history": "ORD004",
		},
	}
}

// DemoSources builds the three catalog tables as adapter sources.
func DemoSources() []Source {
	return []Source{
		NewTableSource("orders", "order_id", []string{"status", "tracking_number"}, DemoOrders()),
		NewTableSource("products", "product_id", []string{"name", "category", "description"}, DemoProducts()),
		NewTableSource("customers", "customer_id", []string{"name", "email"}, DemoCustomers()),
	}
}
