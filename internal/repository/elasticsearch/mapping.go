package elasticsearch

// DefaultIndexName is the index used when none is configured.
const DefaultIndexName = "restaurants"

// maxResultWindow is the index.max_result_window default. Pages reaching past
// it only report the total.
const maxResultWindow = 10000

// buildIndexMapping returns the restaurants index definition. Reviews and
// photos are stored but not indexed since no query filters on them.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "name_analyzer": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      }
    }
  },
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "id":                  { "type": "keyword" },
      "name":                { "type": "text", "analyzer": "name_analyzer", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "cuisine_type":        { "type": "text", "analyzer": "name_analyzer", "fields": { "keyword": { "type": "keyword" } } },
      "contact_information": { "type": "text", "index": false },
      "address": {
        "properties": {
          "street_number": { "type": "keyword" },
          "street_name":   { "type": "text" },
          "unit":          { "type": "keyword" },
          "city":          { "type": "text", "analyzer": "name_analyzer", "fields": { "keyword": { "type": "keyword" } } },
          "state":         { "type": "keyword" },
          "postal_code":   { "type": "keyword" },
          "country":       { "type": "keyword" }
        }
      },
      "geo_location":    { "type": "object", "enabled": false },
      "location":        { "type": "geo_point" },
      "average_rating":  { "type": "float" },
      "operating_hours": { "type": "object", "enabled": false },
      "photos":          { "type": "object", "enabled": false },
      "reviews":         { "type": "object", "enabled": false },
      "version":         { "type": "long", "index": false },
      "created_at":      { "type": "date" },
      "updated_at":      { "type": "date" }
    }
  }
}`
}
