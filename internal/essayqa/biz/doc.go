// Package biz 提供文章问答的业务逻辑层。
//
// 该包拆分为以下组件：
//   - Retriever: 问题向量化、相似度检索，以及检索失败时的降级
//   - Synthesizer: 构建带编号引用的提示词并调用 LLM 生成答案，超时降级
//   - QAService: 组合以上组件，交互入口与评测共用同一条问答链路
//   - AnswerCache: 基于 Redis 的答案缓存
package biz
