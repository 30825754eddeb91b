package operations

// queries holds every statement the dispatcher may run, keyed by the
// template id referenced from catalog.yaml. Values are always bound through
// $n placeholders.
var queries = map[string]string{
	"top_suppliers": `
		SELECT d.supplier_country,
		       c.name AS supplier_name,
		       d.dependency_ratio
		FROM icio_dependency d
		LEFT JOIN countries c ON c.iso3 = d.supplier_country
		WHERE d.buyer_country = $1
		  AND d.buyer_sector = $2
		  AND d.year = $3
		ORDER BY d.dependency_ratio DESC NULLS LAST, d.supplier_country ASC
		LIMIT $4`,

	"top_sectors": `
		SELECT d.buyer_sector,
		       a.name AS sector_name,
		       d.dependency_ratio
		FROM icio_dependency d
		LEFT JOIN activities a ON a.code = d.buyer_sector
		WHERE d.buyer_country = $1
		  AND d.supplier_country = $2
		  AND d.year = $3
		ORDER BY d.dependency_ratio DESC NULLS LAST, d.buyer_sector ASC
		LIMIT $4`,

	"compare_countries": `
		SELECT d.buyer_country,
		       c.name AS country_name,
		       d.dependency_ratio
		FROM icio_dependency d
		LEFT JOIN countries c ON c.iso3 = d.buyer_country
		WHERE d.buyer_country = ANY($1::text[])
		  AND d.buyer_sector = $2
		  AND d.supplier_country = $3
		  AND d.year = $4
		ORDER BY d.buyer_country ASC`,

	"time_series": `
		SELECT d.year,
		       d.dependency_ratio
		FROM icio_dependency d
		WHERE d.buyer_country = $1
		  AND d.buyer_sector = $2
		  AND d.supplier_country = $3
		  AND d.year BETWEEN $4 AND $5
		ORDER BY d.year ASC`,

	"ping": `SELECT 1 AS value`,

	"db_info": `
		SELECT current_database() AS database,
		       current_user AS db_user,
		       version() AS server_version,
		       now() AS server_time`,
}
