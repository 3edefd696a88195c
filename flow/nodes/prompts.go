package nodes

// Default prompt templates for the built-in model nodes. Every template is
// user-overridable through the node's prompt_template parameter; these are
// the values the editor pre-fills.

const classifyPrompt = `Classify the difficulty of the following task.

Task:
{input}

Respond with exactly one word:
- easy: a simple, direct question or single-step task
- medium: requires reasoning or a structured answer, but no decomposition
- hard: a complex, multi-step task that needs to be broken into subtasks

Answer with only the word easy, medium, or hard.`

const retryPrompt = `Your previous answer was reviewed and rejected.

Reviewer feedback:
{previous_feedback}

Original task:
{input_text}

Write an improved answer that addresses every point of the feedback.`

const reviewPrompt = `Review the following answer for correctness, completeness, and clarity.

Question:
{question}

Answer:
{answer}

Respond in exactly this format:
VERDICT: approved or rejected
FEEDBACK: your detailed feedback (required when rejected)`

const createTodosPrompt = `Break the following task into a short, ordered TODO list.

Task:
{input}

Respond with ONLY a JSON array of items, each with "id" (integer, starting
at 1), "title" (short imperative), and "description" (one or two sentences).
No other text.`

const executeTodoPrompt = `You are working through a task plan, one item at a time.

Overall goal:
{goal}

Current item: {title}
{description}

Results of previous items:
{previous_results}

Complete the current item now. Respond with the concrete result of this
item only.`

const finalReviewPrompt = `All plan items for the following task have been executed.

Task:
{input}

Item results:
{todo_results}

Review the combined results: note what was accomplished, any gaps or
mistakes, and what the final answer must include.`

const finalAnswerPrompt = `Synthesize the final answer for the following task.

Task:
{input}

Item results:
{todo_results}

Reviewer notes:
{review_feedback}

Write the complete, polished final answer. Do not mention the plan or the
review process.`
