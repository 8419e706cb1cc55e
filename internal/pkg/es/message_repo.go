package es

import (
	"context"
	"errors"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/operator"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/sortorder"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/versiontype"
	"github.com/goccy/go-json"
)

type MessageRepo interface {
	EnsureIndex(ctx context.Context) error
	IndexMessage(ctx context.Context, msg *MessageES) error
	DeleteMessage(ctx context.Context, id string) error
	SearchMessages(ctx context.Context, conversationIDs []string, keyword string, size int) ([]*MessageES, error)
}

type MessageRepoImpl struct {
	client *elasticsearch.TypedClient
	index  string
}

func NewMessageRepo(client *elasticsearch.TypedClient, index string) MessageRepo {
	return &MessageRepoImpl{client: client, index: index}
}

// EnsureIndex 索引不存在时按固定 mapping 创建
func (s *MessageRepoImpl) EnsureIndex(ctx context.Context) error {
	exists, err := s.client.Indices.Exists(s.index).Do(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.client.Indices.Create(s.index).
		Mappings(&types.TypeMapping{
			Properties: map[string]types.Property{
				"id":              types.NewKeywordProperty(),
				"conversation_id": types.NewKeywordProperty(),
				"sender_id":       types.NewKeywordProperty(),
				"message_type":    types.NewKeywordProperty(),
				"content":         types.NewTextProperty(),
				"created_at":      types.NewDateProperty(),
				"updated_at":      types.NewDateProperty(),
			},
		}).
		Do(ctx)
	if err != nil {
		var e *types.ElasticsearchError
		// 并发创建
		if errors.As(err, &e) && e.Status == 400 && e.ErrorCause.Type == "resource_already_exists_exception" {
			return nil
		}
		return err
	}
	return nil
}

// IndexMessage 写入文档, 以更新时间作为外部版本号, 旧版本写入被忽略
func (s *MessageRepoImpl) IndexMessage(ctx context.Context, msg *MessageES) error {
	_, err := s.client.Index(s.index).
		Id(msg.ID).
		Document(msg).
		Version(strconv.FormatInt(msg.UpdatedAt.UnixNano(), 10)).
		VersionType(versiontype.External).
		Do(ctx)

	if err != nil {
		var e *types.ElasticsearchError
		if errors.As(err, &e) {
			if e.Status == ConflictCode {
				return nil
			}
		}
		return err
	}

	return nil
}

func (s *MessageRepoImpl) DeleteMessage(ctx context.Context, id string) error {
	_, err := s.client.Delete(s.index, id).Do(ctx)

	if err != nil {
		var e *types.ElasticsearchError
		if errors.As(err, &e) {
			if e.Status == NotFoundCode {
				return nil
			}
		}
		return err
	}

	return nil
}

// SearchMessages 在给定会话范围内全文检索, 按时间倒序
func (s *MessageRepoImpl) SearchMessages(ctx context.Context, conversationIDs []string, keyword string, size int) ([]*MessageES, error) {
	if len(conversationIDs) == 0 || keyword == "" {
		return []*MessageES{}, nil
	}

	ids := make([]types.FieldValue, len(conversationIDs))
	for i, id := range conversationIDs {
		ids[i] = id
	}

	req := s.client.Search().
		Index(s.index).
		Query(&types.Query{
			Bool: &types.BoolQuery{
				Filter: []types.Query{{
					Terms: &types.TermsQuery{
						TermsQuery: map[string]types.TermsQueryField{
							"conversation_id": ids,
						},
					},
				}},
				Must: []types.Query{{
					Match: map[string]types.MatchQuery{
						"content": {Query: keyword, Operator: &operator.And},
					},
				}},
			},
		}).
		Sort(types.SortOptions{SortOptions: map[string]types.FieldSort{
			"created_at": {Order: &sortorder.Desc},
		}}).
		Size(size)

	return s.executeSearch(ctx, req)
}

func (s *MessageRepoImpl) executeSearch(ctx context.Context, req *search.Search) ([]*MessageES, error) {
	resp, err := req.Do(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*MessageES, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var msg MessageES
		if hit.Source_ == nil {
			continue
		}
		if err = json.Unmarshal(hit.Source_, &msg); err != nil {
			continue
		}
		results = append(results, &msg)
	}
	return results, nil
}
