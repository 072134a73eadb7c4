package graph

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/lvdashuaibi/pollchain/config"
	"github.com/lvdashuaibi/pollchain/internal/integrity"
	"github.com/lvdashuaibi/pollchain/internal/model"
	"github.com/lvdashuaibi/pollchain/internal/service"
)

// GraphQLServer 面向投票人的GraphQL服务器
type GraphQLServer struct {
	schema   *graphql.Schema
	handler  *relay.Handler
	resolver *Resolver
}

// GraphQL Schema定义
const schemaString = `
type Receipt {
  receiptCode: String!
  pollId: Int!
  contentHash: String!
  castAt: String!
}

type VoteResponse {
  success: Boolean!
  message: String!
  pollId: Int!
  sequence: Int!
  receipt: Receipt
  timestamp: String!
}

type ChainHealth {
  pollId: Int!
  valid: Boolean!
  totalVotes: Int!
  brokenLinkCount: Int!
}

type Query {
  # 按回执码查询回执，供投票人自行核验
  receipt(code: String!): Receipt!

  # 查询某投票活动的链健康摘要
  pollChainHealth(pollId: Int!): ChainHealth!
}

type Mutation {
  # 投票并获得回执
  castVote(pollId: Int!, optionId: Int!, voterToken: String!): VoteResponse!
}

schema {
  query: Query
  mutation: Mutation
}
`

// NewGraphQLServer 创建新的GraphQL服务器
func NewGraphQLServer(voteService *service.VoteService, reporter *integrity.Reporter) *GraphQLServer {
	resolver := NewResolver(voteService, reporter)

	schema := graphql.MustParseSchema(schemaString, resolver,
		graphql.UseFieldResolvers(),
	)

	handler := &relay.Handler{Schema: schema}

	return &GraphQLServer{
		schema:   schema,
		handler:  handler,
		resolver: resolver,
	}
}

// Start 启动GraphQL服务器
func (s *GraphQLServer) Start(port int) error {
	mux := http.NewServeMux()

	// 设置GraphQL API端点
	mux.Handle(config.AppConfig.GraphQL.Path, s.handler)

	// 设置GraphQL Playground
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(playgroundHTML))
	})

	addr := fmt.Sprintf(":%d", port)
	log.Printf("GraphQL服务已启动，API端点: %s, Playground: http://localhost%s/",
		config.AppConfig.GraphQL.Path, addr)

	return http.ListenAndServe(addr, mux)
}

// Resolver GraphQL解析器
type Resolver struct {
	voteService *service.VoteService
	reporter    *integrity.Reporter
}

// NewResolver 创建新的解析器
func NewResolver(voteService *service.VoteService, reporter *integrity.Reporter) *Resolver {
	return &Resolver{
		voteService: voteService,
		reporter:    reporter,
	}
}

// Receipt 按回执码查询回执
func (r *Resolver) Receipt(ctx context.Context, args struct{ Code string }) (*ReceiptResolver, error) {
	receipt, err := r.voteService.ResolveReceipt(args.Code)
	if err != nil {
		if errors.Is(err, model.ErrReceiptNotFound) {
			return nil, fmt.Errorf("回执不存在: %s", args.Code)
		}
		return nil, err
	}

	return &ReceiptResolver{receipt: receipt}, nil
}

// PollChainHealth 查询链健康摘要
func (r *Resolver) PollChainHealth(ctx context.Context, args struct{ PollID int32 }) (*ChainHealthResolver, error) {
	summary, err := r.reporter.HealthSummary(int64(args.PollID))
	if err != nil {
		return nil, err
	}

	return &ChainHealthResolver{summary: summary}, nil
}

// CastVote 投票
func (r *Resolver) CastVote(ctx context.Context, args struct {
	PollID     int32
	OptionID   int32
	VoterToken string
}) (*VoteResponseResolver, error) {
	request := &model.VoteRequest{
		PollID:     int64(args.PollID),
		OptionID:   int64(args.OptionID),
		VoterToken: args.VoterToken,
	}

	response, err := r.voteService.CastVote(request)
	if err != nil {
		// 失败响应随错误一并返回，客户端可读到失败原因
		response.Message = fmt.Sprintf("投票失败: %v", err)
		return &VoteResponseResolver{response: response}, nil
	}

	return &VoteResponseResolver{response: response}, nil
}

// ReceiptResolver 回执解析器
type ReceiptResolver struct {
	receipt *model.Receipt
}

func (r *ReceiptResolver) ReceiptCode() string {
	return r.receipt.ReceiptCode
}

func (r *ReceiptResolver) PollID() int32 {
	return int32(r.receipt.PollID)
}

func (r *ReceiptResolver) ContentHash() string {
	return r.receipt.ContentHash
}

func (r *ReceiptResolver) CastAt() string {
	return r.receipt.CastAt.Format(time.RFC3339Nano)
}

// ChainHealthResolver 链健康摘要解析器
type ChainHealthResolver struct {
	summary *model.HealthSummary
}

func (r *ChainHealthResolver) PollID() int32 {
	return int32(r.summary.PollID)
}

func (r *ChainHealthResolver) Valid() bool {
	return r.summary.Valid
}

func (r *ChainHealthResolver) TotalVotes() int32 {
	return int32(r.summary.TotalVotes)
}

func (r *ChainHealthResolver) BrokenLinkCount() int32 {
	return int32(r.summary.BrokenLinkCount)
}

// VoteResponseResolver 投票响应解析器
type VoteResponseResolver struct {
	response *model.VoteResponse
}

func (r *VoteResponseResolver) Success() bool {
	return r.response.Success
}

func (r *VoteResponseResolver) Message() string {
	return r.response.Message
}

func (r *VoteResponseResolver) PollID() int32 {
	return int32(r.response.PollID)
}

func (r *VoteResponseResolver) Sequence() int32 {
	return int32(r.response.Sequence)
}

func (r *VoteResponseResolver) Receipt() *ReceiptResolver {
	if r.response.Receipt == nil {
		return nil
	}
	return &ReceiptResolver{receipt: r.response.Receipt}
}

func (r *VoteResponseResolver) Timestamp() string {
	return r.response.Timestamp.Format(time.RFC3339)
}

// playgroundHTML GraphQL Playground HTML
const playgroundHTML = `
<!DOCTYPE html>
<html>
<head>
  <meta charset=utf-8/>
  <meta name="viewport" content="user-scalable=no, initial-scale=1.0, minimum-scale=1.0, maximum-scale=1.0, minimal-ui">
  <title>Pollchain GraphQL Playground</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/css/index.css" />
  <link rel="shortcut icon" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/favicon.png" />
  <script src="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/js/middleware.js"></script>
</head>
<body>
  <div id="root">
    <style>
      body {
        background-color: rgb(23, 42, 58);
        font-family: Open Sans, sans-serif;
        height: 90vh;
      }
      #root {
        height: 100%;
        width: 100%;
        display: flex;
        align-items: center;
        justify-content: center;
      }
      .loading {
        font-size: 32px;
        font-weight: 200;
        color: rgba(255, 255, 255, .6);
        margin-left: 20px;
      }
      img {
        width: 78px;
        height: 78px;
      }
      .title {
        font-weight: 400;
      }
    </style>
    <img src='https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/logo.png' alt=''>
    <div class="loading">
      <span class="title">Pollchain GraphQL Playground</span>
    </div>
  </div>
  <script>window.addEventListener('load', function (event) {
      GraphQLPlayground.init(document.getElementById('root'), {
        endpoint: '/graphql'
      })
    })</script>
</body>
</html>
`
