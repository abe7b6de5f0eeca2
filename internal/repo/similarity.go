package repo

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"

	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
)

const (
	MetricCosine       = "cosine"
	MetricL2           = "l2"
	MetricInnerProduct = "inner_product"
)

var distanceOperators = map[string]string{
	MetricCosine:       "<=>",
	MetricL2:           "<->",
	MetricInnerProduct: "<#>",
}

// filterColumns lists the columns a search may narrow on with an exact match.
var filterColumns = map[string]struct{}{
	"ext_file_id":      {},
	"ext_file_name":    {},
	"asset_id":         {},
	"result_id":        {},
	"email_from":       {},
	"compliance_risk":  {},
	"genre":            {},
	"primary_topics":   {},
	"emotional_tone":   {},
	"date":             {},
	"one_line_summary": {},
}

type SimilarityQuery struct {
	Vector []float32
	// Model names the vector space of Vector. When set, only vectors stored
	// by the same model are ranked.
	Model   string
	Metric  string
	Filters map[string]string
	Limit   int
}

// BuildSimilarityQuery renders a nearest-neighbour select. Filters become
// equality predicates in the WHERE clause so they narrow the candidates
// before ordering. Rows without a vector, or with a vector from another
// model, have no distance and sort last.
func BuildSimilarityQuery(q SimilarityQuery) (string, []interface{}, error) {
	op, ok := distanceOperators[q.Metric]
	if !ok {
		return "", nil, fmt.Errorf("unknown metric %q: %w", q.Metric, appErr.ErrInvalid)
	}
	if len(q.Vector) == 0 {
		return "", nil, fmt.Errorf("empty query vector: %w", appErr.ErrInvalid)
	}
	if q.Limit <= 0 {
		return "", nil, fmt.Errorf("limit must be positive: %w", appErr.ErrInvalid)
	}

	args := []interface{}{pgvector.NewVector(q.Vector)}
	distance := "embedding " + op + " $1"
	if q.Model != "" {
		args = append(args, q.Model)
		distance = fmt.Sprintf("CASE WHEN embedding_model = $%d THEN %s END", len(args), distance)
	}
	fields := make([]string, 0, len(q.Filters))
	for field := range q.Filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	conds := make([]string, 0, len(fields))
	for _, field := range fields {
		if _, ok := filterColumns[field]; !ok {
			return "", nil, fmt.Errorf("unsupported filter field %q: %w", field, appErr.ErrInvalid)
		}
		value, err := filterValue(field, q.Filters[field])
		if err != nil {
			return "", nil, err
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", field, len(args)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(emailColumns)
	sb.WriteString(", ")
	sb.WriteString(distance)
	sb.WriteString(" AS distance FROM email_extractions")
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	args = append(args, q.Limit)
	sb.WriteString(fmt.Sprintf(" ORDER BY distance ASC NULLS LAST, id ASC LIMIT $%d", len(args)))
	return sb.String(), args, nil
}

func filterValue(field, raw string) (interface{}, error) {
	if field != "compliance_risk" {
		return raw, nil
	}
	if b, ok := ParseYesNo(raw); ok {
		return b, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("compliance_risk must be a boolean or Yes/No: %w", appErr.ErrInvalid)
	}
	return b, nil
}

// ParseYesNo maps the extraction provider's binary labels onto a bool.
func ParseYesNo(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes":
		return true, true
	case "no":
		return false, true
	}
	return false, false
}
