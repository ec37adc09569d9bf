// Package harness 批量运行问答评测：按 ID 关联问题与标准答案，
// 分批顺序作答并评分，每批结束写中间文件，最后写出汇总报告。
package harness
