// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

/*
包 tokenizer 提供模型感知的 Token 计数能力。

TiktokenTokenizer 为 OpenAI 系模型提供精确计数（基于 tiktoken 的
o200k_base / cl100k_base 编码），EstimatorTokenizer 为未知模型提供
字符比例估算。全局注册表支持按模型名（含前缀匹配）解析分词器，
GetTokenizerOrEstimator 保证总能拿到可用实现。

Agent 层用它估算上下文占用；cost 包用精确计数替代 Provider 未返回
usage 时的缺口。
*/
package tokenizer
