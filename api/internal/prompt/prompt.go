package prompt

import "strings"

// Question is the fixed instruction sent with every image. The reply labels
// (题目类型, 题目内容, 正确答案, 解析) are what parser.Parse looks for.
const Question = `
Please carefully analyze the question in this image. If it's a multiple choice, fill-in-the-blank, or true/false question, please:

1. First identify the question type and content
2. Carefully analyze the requirements
3. Provide the correct answer
4. Give a brief explanation

Please respond in Chinese with the following format:
题目类型：[选择题/填空题/判断题/其他]
题目内容：[question text]
正确答案：[answer]
解析：[brief explanation]

If the image is unclear or not a question, please indicate that it cannot be recognized.
`

// ConnectionTest is sent with a blank image to check that a backend answers at all.
const ConnectionTest = "请简单描述这张图片"

// Build returns the analysis instruction, trimmed of surrounding blank lines.
func Build() string {
	return strings.TrimSpace(Question)
}
