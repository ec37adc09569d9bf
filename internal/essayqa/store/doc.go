// Package store 提供文章存储层。
//
// DocumentStore 有三种实现：
//   - MemoryStore: 进程内暴力余弦检索，用于测试和小语料
//   - SQLStore: 基于 gorm，支持 sqlite、mysql 和 postgres（pgvector 下推检索）
//   - MilvusStore: 基于 Milvus 向量数据库
//
// 所有实现对相似度相同的结果按 ID 升序排列，降级切片同样按 ID 升序。
package store
