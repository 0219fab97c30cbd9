// Package dataagent provides cached, query-capable access to tabular data
// files: CSV, TSV, XLSX, and Parquet, with gzip, bzip2, xz, and zstd
// compression supported for the delimited formats.
//
// A Reader serves one file. It loads full tables or column subsets,
// truncated head and tail views, streaming chunk iterators, and parallel
// chunked loads, and answers declarative queries combining filters,
// grouping with aggregation, ordering, and limits. Full and column-subset
// loads are cached per reader; cache entries are invalidated when the
// file's size or modification time changes, and column-subset requests
// are served by projecting a cached full table whenever possible.
// Truncated loads are never cached.
//
// A Coordinator manages a bounded pool of readers keyed by absolute file
// path, evicting idle readers and preloading files ahead of use.
//
// Basic usage:
//
//	reader, err := dataagent.NewReader("sales.xlsx", dataagent.ReaderConfig{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	result, err := reader.Query("Sheet1", &dataagent.QueryDescriptor{
//		Filters:         []dataagent.Filter{{Column: "region", Operator: dataagent.OpEqual, Value: "west"}},
//		GroupBy:         "product",
//		Aggregation:     dataagent.AggSum,
//		AggregateColumn: "amount",
//		OrderBy:         "amount",
//		Order:           dataagent.SortDesc,
//		Limit:           10,
//	})
package dataagent
