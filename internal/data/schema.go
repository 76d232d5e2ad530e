package data

// placesMapping places 索引的映射：写入侧 ASCII 折叠、查询侧同义词
// 扩展、自动补全 edge-ngram（1..15），name.* 与 parent.*.name_* 走动态模板。
const placesMapping = `{
  "settings": {
    "analysis": {
      "filter": {
        "autocomplete_ngram": {
          "type": "edge_ngram",
          "min_gram": 1,
          "max_gram": 15
        },
        "street_synonyms": {
          "type": "synonym_graph",
          "synonyms": [
            "st, street",
            "ave, avenue",
            "rd, road",
            "blvd, boulevard",
            "dr, drive",
            "ln, lane",
            "pl, platz, place",
            "str, strasse, straße"
          ]
        }
      },
      "analyzer": {
        "cypress_index": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        },
        "cypress_query": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding", "street_synonyms"]
        },
        "cypress_autocomplete": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding", "autocomplete_ngram"]
        }
      }
    }
  },
  "mappings": {
    "dynamic_templates": [
      {
        "names": {
          "path_match": "name.*",
          "mapping": {
            "type": "text",
            "analyzer": "cypress_index",
            "search_analyzer": "cypress_query",
            "fields": {
              "autocomplete": {
                "type": "text",
                "analyzer": "cypress_autocomplete",
                "search_analyzer": "cypress_query"
              }
            }
          }
        }
      },
      {
        "parent_names": {
          "path_match": "parent.*.name_*",
          "mapping": {
            "type": "text",
            "analyzer": "cypress_index",
            "search_analyzer": "cypress_query"
          }
        }
      },
      {
        "parent_name": {
          "path_match": "parent.*.name",
          "mapping": {
            "type": "text",
            "analyzer": "cypress_index",
            "search_analyzer": "cypress_query"
          }
        }
      }
    ],
    "properties": {
      "id": { "type": "keyword" },
      "layer": { "type": "keyword" },
      "source_file": { "type": "keyword" },
      "version": { "type": "long" },
      "center_point": { "type": "geo_point" },
      "geometry": { "type": "geo_shape" },
      "bounding_box": { "type": "float" },
      "categories": { "type": "keyword" },
      "importance": { "type": "float" },
      "wikidata_id": { "type": "keyword" },
      "address": {
        "properties": {
          "housenumber": { "type": "keyword" },
          "street": { "type": "text", "analyzer": "cypress_index", "search_analyzer": "cypress_query" },
          "postcode": { "type": "keyword" },
          "city": { "type": "text", "analyzer": "cypress_index", "search_analyzer": "cypress_query" }
        }
      }
    }
  }
}`

// versionsMapping 版本辅助索引的映射。
const versionsMapping = `{
  "mappings": {
    "properties": {
      "source_file": { "type": "keyword" },
      "current_version": { "type": "long" },
      "previous_version": { "type": "long" },
      "file_hash": { "type": "keyword" },
      "started_at": { "type": "date" },
      "finished_at": { "type": "date" }
    }
  }
}`
