package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-report-cache/sqlbuild"
)

func col(candidates ...string) ColumnSpec {
	return ColumnSpec{Candidates: candidates}
}

func colOr(fallback string, candidates ...string) ColumnSpec {
	return ColumnSpec{Candidates: candidates, Fallback: fallback}
}

var demoExclusion = Predicate{Column: "user_code", Op: sqlbuild.OpNotLike, Value: "%DEMO%", Upper: true}

// DefaultDatasets returns the built-in dataset definitions.
func DefaultDatasets() []Dataset {
	return []Dataset{
		{
			Name:   "daily-sales",
			Tables: []string{"flat_daily_sales_report", "flat_sales_transactions", "flat_transactions"},
			Columns: map[string]ColumnSpec{
				"trx_date":      col("trx_trxdate", "trx_date_only", "trx_date"),
				"trx_type":      col("trx_trxtype", "trx_type"),
				"trx_code":      col("trx_trxcode", "trx_code"),
				"user_code":     col("trx_usercode", "field_user_code", "user_code"),
				"user_name":     col("trx_username", "field_user_name", "user_name"),
				"user_type":     col("user_usertype", "field_user_type", "user_type"),
				"area_code":     col("route_areacode", "customer_regioncode"),
				"sub_area_code": col("route_subareacode", "customer_citycode"),
				"route_code":    col("trx_routecode", "route_code"),
				"team_leader":   col("route_salesmancode"),
				"channel_code":  col("customer_channelcode"),
				"channel_name":  col("customer_channel_description"),
				"customer_code": col("customer_code"),
				"customer_name": col("customer_description", "customer_name"),
				"brand":         col("item_brand_description"),
				"category":      col("item_category_description"),
				"amount":        colOr("0", "trx_totalamount"),
			},
			DateColumn:  "trx_date",
			ActorColumn: "user_code",
			BasePredicates: []Predicate{
				{Column: "trx_type", Op: sqlbuild.OpEq, Value: 1},
				demoExclusion,
			},
			Dimensions: []Dimension{
				{Key: "areas", Param: "areaCode", Aliases: []string{"regionCode"}, Column: "area_code"},
				{Key: "subAreas", Param: "subAreaCode", Aliases: []string{"cityCode"}, Column: "sub_area_code"},
				{Key: "teamLeaders", Param: "teamLeaderCode", Column: "team_leader"},
				{Key: "userTypes", Param: "userType", Column: "user_type"},
				{Key: "users", Param: "userCode", Column: "user_code", LabelColumn: "user_name"},
				{Key: "channels", Param: "channelCode", Column: "channel_code", LabelColumn: "channel_name"},
				{Key: "stores", Param: "storeCode", Column: "customer_code", LabelColumn: "customer_name"},
			},
		},
		{
			Name:   "purchase-orders",
			Tables: []string{"flat_purchase_orders", "tbl_purchase_orders"},
			Columns: map[string]ColumnSpec{
				"po_date":     col("po_date", "po_created_datetime"),
				"user_code":   col("field_user_code", "user_code"),
				"user_name":   col("field_user_name", "user_name"),
				"team_leader": col("tl_code"),
				"leader_name": col("tl_name"),
				"chain_code":  col("chain_code"),
				"chain_name":  col("chain_name"),
				"store_code":  col("store_code", "customer_code"),
				"store_name":  col("store_name", "customer_name"),
				"status":      col("po_status_name", "delivery_status"),
				"category":    col("product_category"),
				"line_amount": colOr("0", "line_amount"),
			},
			DateColumn:     "po_date",
			ActorColumn:    "user_code",
			BasePredicates: []Predicate{demoExclusion},
			Dimensions: []Dimension{
				{Key: "teamLeaders", Param: "teamLeaderCode", Column: "team_leader", LabelColumn: "leader_name"},
				{Key: "users", Param: "userCode", Column: "user_code", LabelColumn: "user_name"},
				{Key: "chains", Param: "chainCode", Column: "chain_code", LabelColumn: "chain_name"},
				{Key: "stores", Param: "storeCode", Column: "store_code", LabelColumn: "store_name"},
				{Key: "statuses", Param: "status", Column: "status"},
			},
		},
		{
			Name:   "store-visits",
			Tables: []string{"flat_store_visits", "new_flat_customer_visits", "flat_customer_visit"},
			Columns: map[string]ColumnSpec{
				"visit_date":    col("visit_date"),
				"user_code":     col("user_code", "salesman_code", "field_user_code"),
				"user_name":     col("user_name", "salesman_name", "field_user_name"),
				"area_code":     col("region_code", "route_areacode"),
				"sub_area_code": col("sub_area_code", "city_code"),
				"route_code":    col("route_code"),
				"store_code":    col("customer_code"),
				"store_name":    col("customer_name"),
				"chain_name":    col("channel_name", "chain_name"),
				"duration":      colOr("0", "duration_minutes", "visit_duration_minutes"),
			},
			DateColumn:     "visit_date",
			ActorColumn:    "user_code",
			BasePredicates: []Predicate{{Column: "user_code", Op: sqlbuild.OpNotNull}},
			Dimensions: []Dimension{
				{Key: "areas", Param: "areaCode", Aliases: []string{"regionCode"}, Column: "area_code"},
				{Key: "subAreas", Param: "subAreaCode", Aliases: []string{"cityCode"}, Column: "sub_area_code"},
				{Key: "routes", Param: "routeCode", Aliases: []string{"teamLeaderCode"}, Column: "route_code"},
				{Key: "users", Param: "userCode", Column: "user_code", LabelColumn: "user_name"},
				{Key: "stores", Param: "storeCode", Column: "store_code", LabelColumn: "store_name"},
				{Key: "chains", Param: "chainName", Column: "chain_name"},
			},
		},
	}
}

type datasetFile struct {
	Datasets []Dataset `yaml:"datasets"`
}

// LoadDatasets reads definitions from a YAML file.
func LoadDatasets(path string) ([]Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read datasets file: %w", err)
	}
	return ParseDatasets(data)
}

// ParseDatasets decodes and validates YAML definitions.
func ParseDatasets(data []byte) ([]Dataset, error) {
	var file datasetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode datasets: %w", err)
	}
	if len(file.Datasets) == 0 {
		return nil, fmt.Errorf("decode datasets: no datasets defined")
	}
	for _, ds := range file.Datasets {
		if err := ds.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Datasets, nil
}
