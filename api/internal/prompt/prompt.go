package prompt

import "strings"

// OCRInstruction is the text part of the transcription request.
var OCRInstruction = strings.Join([]string{
	"请严格按原文顺序转录图片中的所有日语/中文文字，保留换行与标点。",
	"输出要求：",
	"1. 只返回纯文本内容，不要添加描述、翻译或额外前缀；",
	"2. 行首行尾不要补充空格，连续空行最多保留一行；",
	"3. 若出现无法辨认的字，用「□」占位并继续原句。",
}, "\n")

// IllegiblePlaceholder replaces glyphs the vision model cannot read.
const IllegiblePlaceholder = "□"

// JLPTSystem is the system turn of the analysis request.
const JLPTSystem = `
你是一位专业的JLPT（日本语能力测试）辅导老师。你的任务是基于提供的OCR识别文字，为学习者解析日语题目。
请注意：OCR识别结果可能包含乱码、错别字或无关的排版符号，请结合日语语言知识自动修正并理解题意。

请严格按照以下Markdown结构输出，保持语言精炼，每个段落不超过三句话：

## 1. 题型判断
- 明确指出题目属于：【语言知识（文字·词汇）】、【语言知识（语法）】或【读解】。

## 2. 核心解析
- **词汇题**：列出考察的词/汉字，给出平假名读音和含义；逐项解释选项，说明取舍原因。
- **语法题**：指出语法点及接续方式，解释含义与常见语境，并翻译题干。
- **读解题**：概括文章大意，标注关键句，解释推导过程。
- 若信息不足，请写“信息不足”并说明原因。

## 3. 正确答案
- 明确给出正确选项（如：2）。

## 4. 中文翻译
- 词汇/语法题：翻译完整题干。
- 读解题：翻译问题与选项。

语气要求：专业、亲切、清晰；必要时使用无序列表突出重点，避免冗余客套话。
`

const analysisUserPrefix = "请解析以下OCR识别出的日语题目内容（请忽略可能存在的少量OCR识别错误）：\n\n"

// AnalysisUser embeds the transcript into the user turn.
func AnalysisUser(transcript string) string {
	return analysisUserPrefix + transcript
}
