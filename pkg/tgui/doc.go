// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers ("namespace:action:payload")
//   - A message builder that is safe for ParseMode="HTML" (auto escaping)
//   - Pagination for list views
package tgui
