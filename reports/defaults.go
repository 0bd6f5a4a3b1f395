package reports

// DefaultDefinitions returns the built-in reports over the default datasets.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Name:        "daily-sales-summary",
			Dataset:     "daily-sales",
			Description: "Transactions and sales amount per day",
			SQL: `
SELECT {{day (col "trx_date")}} AS day,
       COUNT(DISTINCT {{col "trx_code"}}) AS transactions,
       SUM({{col "amount"}}) AS total_amount
FROM {{.Table}}
{{.Where}}
GROUP BY {{day (col "trx_date")}}
ORDER BY day
LIMIT {{.Limit}}`,
			DefaultLimit: 400,
		},
		{
			Name:        "sales-by-user",
			Dataset:     "daily-sales",
			Description: "Sales amount per field user",
			SQL: `
SELECT {{col "user_code"}} AS user_code,
       MAX({{col "user_name"}}) AS user_name,
       COUNT(DISTINCT {{col "trx_code"}}) AS transactions,
       SUM({{col "amount"}}) AS total_amount
FROM {{.Table}}
{{.Where}}
GROUP BY {{col "user_code"}}
ORDER BY total_amount DESC, user_code
LIMIT {{.Limit}}`,
		},
		{
			Name:        "top-stores",
			Dataset:     "daily-sales",
			Description: "Stores ranked by sales amount",
			SQL: `
SELECT {{col "customer_code"}} AS store_code,
       MAX({{col "customer_name"}}) AS store_name,
       COUNT(DISTINCT {{col "trx_code"}}) AS transactions,
       SUM({{col "amount"}}) AS total_amount
FROM {{.Table}}
{{.Where}}
GROUP BY {{col "customer_code"}}
ORDER BY total_amount DESC, store_code
LIMIT {{.Limit}}`,
			DefaultLimit: 20,
		},
		{
			Name:        "purchase-order-status",
			Dataset:     "purchase-orders",
			Description: "Purchase orders per delivery status",
			SQL: `
SELECT {{col "status"}} AS status,
       COUNT(*) AS orders,
       COUNT(DISTINCT {{col "store_code"}}) AS stores,
       SUM({{col "line_amount"}}) AS amount
FROM {{.Table}}
{{.Where}}
GROUP BY {{col "status"}}
ORDER BY orders DESC, status
LIMIT {{.Limit}}`,
		},
		{
			Name:        "visit-summary",
			Dataset:     "store-visits",
			Description: "Store visits and average duration per field user",
			SQL: `
SELECT {{col "user_code"}} AS user_code,
       MAX({{col "user_name"}}) AS user_name,
       COUNT(*) AS visits,
       COUNT(DISTINCT {{col "store_code"}}) AS stores,
       AVG({{col "duration"}}) AS avg_duration
FROM {{.Table}}
{{.Where}}
GROUP BY {{col "user_code"}}
ORDER BY visits DESC, user_code
LIMIT {{.Limit}}`,
		},
	}
}
