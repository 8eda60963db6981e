package driver

// IndexQueries are executed by BuildIndices.
var IndexQueries = []string{
	"CREATE INDEX ON :Run(id);",
	"CREATE INDEX ON :Plant(key);",
	"CREATE INDEX ON :Plant(run_id);",
	"CREATE INDEX ON :Unit(key);",
	"CREATE INDEX ON :Unit(source);",
}

const (
	SaveRunQuery = `
		MERGE (r:Run {id: $run_id})
		SET r.sources = $sources,
			r.plants = $plants,
			r.exported_at = $exported_at
		RETURN r.id AS id
	`

	SavePlantsQuery = `
		UNWIND $plants AS p
		MATCH (r:Run {id: $run_id})
		MERGE (n:Plant {key: p.key})
		SET n.run_id = $run_id,
			n.plant_id = p.plant_id,
			n.name = p.name,
			n.fueltype = p.fueltype,
			n.technology = p.technology,
			n.set = p.set,
			n.country = p.country,
			n.capacity_mw = p.capacity_mw,
			n.efficiency = p.efficiency,
			n.lat = p.lat,
			n.lon = p.lon,
			n.date_in = p.date_in,
			n.date_retrofit = p.date_retrofit,
			n.date_mothball = p.date_mothball,
			n.date_out = p.date_out,
			n.eic = p.eic
		MERGE (r)-[:CONTAINS]->(n)
		RETURN count(n) AS saved
	`

	SaveUnitsQuery = `
		UNWIND $units AS u
		MATCH (p:Plant {key: u.plant_key})
		MERGE (n:Unit {key: u.key})
		SET n.source = u.source,
			n.record_ids = u.record_ids
		MERGE (p)-[:PROVIDED_BY]->(n)
		RETURN count(n) AS saved
	`

	DeleteRunQuery = `
		MATCH (r:Run {id: $run_id})
		OPTIONAL MATCH (r)-[:CONTAINS]->(p:Plant)
		OPTIONAL MATCH (p)-[:PROVIDED_BY]->(u:Unit)
		DETACH DELETE u, p, r
	`

	GetPlantsBySourceQuery = `
		MATCH (p:Plant {run_id: $run_id})-[:PROVIDED_BY]->(u:Unit {source: $source})
		RETURN p.plant_id AS plant_id, p.name AS name, u.record_ids AS record_ids
		ORDER BY plant_id
	`
)
