package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"

	"briefly/internal/core"
	"briefly/internal/logger"
)

// QdrantStore is the Gateway implementation backing the Vector Store
// Gateway against a Qdrant collection. Grounded on
// _examples/Tangerg-lynx/ai/providers/vectorstores/qdrant/store.go's
// collection-initialization, point-building, and payload-conversion
// pattern, generalized from that teacher's document/embedding-model
// abstraction to Theodore's plain []float32 + metadata map shape.
type QdrantStore struct {
	client         *qdrant.Client
	collectionName string
	dimension      int
}

// NewQdrantStore opens (and, if absent, creates) the named collection with
// cosine distance and the given embedding dimension.
func NewQdrantStore(ctx context.Context, client *qdrant.Client, collectionName string, dimension int) (*QdrantStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("qdrant: dimension must be positive, got %d", dimension)
	}

	store := &QdrantStore{client: client, collectionName: collectionName, dimension: dimension}

	exists, err := client.CollectionExists(ctx, collectionName)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: failed to create collection %s: %w", collectionName, err)
		}
		logger.Get().Info("created vector collection", "collection", collectionName, "dimension", dimension)
	}

	return store, nil
}

func (s *QdrantStore) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	if len(vector) != s.dimension {
		return core.NewJobError(core.KindVectorDimensionMismatch,
			fmt.Sprintf("vector has %d dimensions, collection expects %d", len(vector), s.dimension), nil)
	}
	if err := ValidateMetadata(metadata); err != nil {
		return err
	}

	payload, err := qdrant.TryValueMap(metadata)
	if err != nil {
		return core.NewJobError(core.KindVectorUpsertFailed, "failed to encode metadata payload", err)
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: payload,
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionName,
		Points:         []*qdrant.PointStruct{point},
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return core.NewJobError(core.KindVectorUpsertFailed,
			fmt.Sprintf("failed to upsert point %s", id), err)
	}
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]ScoredRecord, error) {
	if len(vector) != s.dimension {
		return nil, core.NewJobError(core.KindVectorDimensionMismatch,
			fmt.Sprintf("query vector has %d dimensions, collection expects %d", len(vector), s.dimension), nil)
	}
	if k <= 0 {
		k = 10
	}

	queryPoints := &qdrant.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
		Filter:         buildFilter(filter),
	}

	scored, err := s.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("qdrant: query failed: %w", err)
	}

	records := make([]ScoredRecord, 0, len(scored))
	for _, p := range scored {
		records = append(records, ScoredRecord{
			Record: Record{
				ID:       pointIDString(p.GetId()),
				Vector:   firstVector(p.GetVectors()),
				Metadata: convertPayload(p.GetPayload()),
			},
			Score: float64(p.GetScore()),
		})
	}

	// Qdrant already ranks by score descending; break exact ties
	// deterministically by id, per spec.md §4.7.
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (s *QdrantStore) Fetch(ctx context.Context, id string) (*Record, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collectionName,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: fetch failed for %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	p := points[0]
	return &Record{
		ID:       id,
		Vector:   firstVector(p.GetVectors()),
		Metadata: convertPayload(p.GetPayload()),
	}, nil
}

func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collectionName,
		Points:         qdrant.NewPointsSelectorIDs([]*qdrant.PointId{qdrant.NewID(id)}),
	})
	if err != nil {
		return core.NewJobError(core.KindVectorUpsertFailed, fmt.Sprintf("failed to delete point %s", id), err)
	}
	return nil
}

func (s *QdrantStore) UpdateMetadata(ctx context.Context, id string, patch map[string]any) error {
	payload, err := qdrant.TryValueMap(patch)
	if err != nil {
		return core.NewJobError(core.KindVectorUpsertFailed, "failed to encode metadata patch", err)
	}

	_, err = s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: s.collectionName,
		Payload:        payload,
		PointsSelector: qdrant.NewPointsSelectorIDs([]*qdrant.PointId{qdrant.NewID(id)}),
	})
	if err != nil {
		return core.NewJobError(core.KindVectorUpsertFailed, fmt.Sprintf("failed to patch metadata for %s", id), err)
	}
	return nil
}

// buildFilter translates Theodore's Filter into the conjunctive Qdrant
// Filter the teacher's ToFilter helper builds: every Equals/In entry
// becomes a Must condition, so a Query only matches points satisfying all
// of them.
func buildFilter(f Filter) *qdrant.Filter {
	if len(f.Equals) == 0 && len(f.In) == 0 {
		return nil
	}

	var must []*qdrant.Condition
	for _, key := range sortedKeys(f.Equals) {
		must = append(must, matchCondition(key, f.Equals[key]))
	}
	for _, key := range sortedInKeys(f.In) {
		values := make([]string, 0, len(f.In[key]))
		for _, v := range f.In[key] {
			values = append(values, fmt.Sprintf("%v", v))
		}
		must = append(must, qdrant.NewMatchKeywords(key, values...))
	}
	return &qdrant.Filter{Must: must}
}

func matchCondition(key string, value any) *qdrant.Condition {
	switch v := value.(type) {
	case string:
		return qdrant.NewMatch(key, v)
	case int:
		return qdrant.NewMatchInt(key, int64(v))
	case int64:
		return qdrant.NewMatchInt(key, v)
	case bool:
		return qdrant.NewMatchBool(key, v)
	default:
		return qdrant.NewMatch(key, fmt.Sprintf("%v", v))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedInKeys(m map[string][]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func firstVector(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	if dense := vectors.GetVector().GetData(); dense != nil {
		return dense
	}
	return nil
}

// convertPayload mirrors the teacher's convertQdrantValue/convertQdrantStruct
// tree-walk, turning Qdrant's typed Value payload back into plain Go
// values so callers see ordinary map[string]any metadata.
func convertPayload(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	metadata := make(map[string]any, len(payload))
	for key, value := range payload {
		metadata[key] = convertValue(value)
	}
	return metadata
}

func convertValue(value *qdrant.Value) any {
	if value == nil {
		return nil
	}
	switch kind := value.Kind.(type) {
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_StructValue:
		return convertStruct(kind.StructValue)
	case *qdrant.Value_ListValue:
		return convertList(kind.ListValue)
	default:
		return nil
	}
}

func convertStruct(s *qdrant.Struct) map[string]any {
	if s == nil || s.Fields == nil {
		return nil
	}
	result := make(map[string]any, len(s.Fields))
	for key, val := range s.Fields {
		result[key] = convertValue(val)
	}
	return result
}

func convertList(l *qdrant.ListValue) []any {
	if l == nil || len(l.Values) == 0 {
		return nil
	}
	result := make([]any, len(l.Values))
	for i, val := range l.Values {
		result[i] = convertValue(val)
	}
	return result
}
