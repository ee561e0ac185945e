package repository

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/venatrix/threatlens/internal/core/domain"
	"github.com/venatrix/threatlens/internal/core/ports"
)

// indicatorDocument is the shape indexed per indicator. The document ID is
// the indicator key, so search results map straight back to store entries.
type indicatorDocument struct {
	Value      string  `json:"value"`
	Context    string  `json:"context"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// BleveIndex is an in-memory full-text index over indicator values and
// context windows, with keyword filtering on type and a numeric floor on
// confidence.
type BleveIndex struct {
	index bleve.Index
}

func NewBleveIndex() (*BleveIndex, error) {
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	numericFieldMapping := bleve.NewNumericFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("value", textFieldMapping)
	docMapping.AddFieldMappingsAt("context", textFieldMapping)
	docMapping.AddFieldMappingsAt("type", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("confidence", numericFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create indicator index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func (b *BleveIndex) Index(ind domain.Indicator) error {
	doc := indicatorDocument{
		Value:      ind.Value,
		Context:    ind.Context,
		Type:       string(ind.Type),
		Confidence: ind.Confidence,
	}
	if err := b.index.Index(ind.Key(), doc); err != nil {
		return fmt.Errorf("failed to index indicator %s: %w", ind.Key(), err)
	}
	return nil
}

func (b *BleveIndex) Remove(key string) error {
	return b.index.Delete(key)
}

// Search returns the keys of indicators matching the query and filter,
// best-scoring first.
func (b *BleveIndex) Search(ctx context.Context, queryStr string, filter ports.IndicatorFilter) ([]string, error) {
	clauses := []query.Query{bleve.NewMatchQuery(queryStr)}

	if filter.Type != "" {
		tq := bleve.NewTermQuery(string(filter.Type))
		tq.SetField("type")
		clauses = append(clauses, tq)
	}
	if filter.MinConfidence > 0 {
		min := filter.MinConfidence
		nq := bleve.NewNumericRangeQuery(&min, nil)
		nq.SetField("confidence")
		clauses = append(clauses, nq)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(clauses...), limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}

	keys := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		keys = append(keys, hit.ID)
	}
	return keys, nil
}

func (b *BleveIndex) Close() error {
	return b.index.Close()
}
